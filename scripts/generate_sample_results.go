package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/raamana/psy/results"
)

func main() {
	var (
		outDir     = flag.String("out", "out/checkpoints", "Checkpoint directory")
		numRep     = flag.Int("reps", 10, "Number of CV repetitions")
		datasets   = flag.String("datasets", "thickness,curvature,volumes", "Comma-separated dataset ids")
		numClasses = flag.Int("classes", 2, "Number of classes")
		samples    = flag.Int("samples", 40, "Test samples per run")
		seed       = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	ids := parseList(*datasets)

	fmt.Println("Generating synthetic classification results...")
	fmt.Printf("  Repetitions: %d\n", *numRep)
	fmt.Printf("  Datasets: %v\n", ids)
	fmt.Printf("  Classes: %d\n", *numClasses)
	fmt.Printf("  Samples per run: %d\n", *samples)
	fmt.Printf("  Checkpoint dir: %s\n", *outDir)

	cv, err := results.NewClassify(nil, *numRep, ids)
	if err != nil {
		log.Fatalf("Failed to create results store: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	chance := 1.0 / float64(*numClasses)

	for d, id := range ids {
		// Later datasets carry less signal, so the comparison has a spread.
		skill := 0.9 - 0.15*float64(d)
		if skill < chance {
			skill = chance
		}

		for rep := 0; rep < *numRep; rep++ {
			trueVals, pred := simulateRun(rng, *samples, *numClasses, skill)
			if err := cv.Add(rep, id, pred, trueVals); err != nil {
				log.Fatalf("Failed to add run %d on %s: %v", rep, id, err)
			}

			cm := confusion(trueVals, pred, *numClasses)
			if err := cv.AddDiagnostics(rep, id, cm, misclassified(trueVals, pred)); err != nil {
				log.Fatalf("Failed to add diagnostics for run %d on %s: %v", rep, id, err)
			}
		}

		fmt.Printf("  Generated %d runs for %s (skill %.2f)\n", *numRep, id, skill)
	}

	cv.AddMeta("source", "synthetic")
	cv.AddMeta("seed", fmt.Sprintf("%d", *seed))

	path, err := cv.Dump(*outDir)
	if err != nil {
		log.Fatalf("Failed to write checkpoint: %v", err)
	}

	fmt.Printf("✓ Wrote checkpoint %s\n", path)
	fmt.Print(cv.String())
}

// simulateRun draws true labels uniformly and predicts each one correctly
// with probability skill, otherwise picking a wrong class uniformly.
func simulateRun(rng *rand.Rand, n, numClasses int, skill float64) (trueVals, pred []float64) {
	trueVals = make([]float64, n)
	pred = make([]float64, n)

	for i := 0; i < n; i++ {
		t := rng.Intn(numClasses)
		trueVals[i] = float64(t)

		if rng.Float64() < skill || numClasses < 2 {
			pred[i] = float64(t)
			continue
		}
		wrong := rng.Intn(numClasses - 1)
		if wrong >= t {
			wrong++
		}
		pred[i] = float64(wrong)
	}
	return trueVals, pred
}

// confusion counts true class (rows) against predicted class (columns).
func confusion(trueVals, pred []float64, numClasses int) [][]float64 {
	cm := make([][]float64, numClasses)
	for i := range cm {
		cm[i] = make([]float64, numClasses)
	}
	for i := range trueVals {
		cm[int(trueVals[i])][int(pred[i])]++
	}
	return cm
}

// misclassified labels each wrongly predicted sample like a subject id.
func misclassified(trueVals, pred []float64) []string {
	var ids []string
	for i := range trueVals {
		if trueVals[i] != pred[i] {
			ids = append(ids, fmt.Sprintf("sub-%03d", i))
		}
	}
	return ids
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
