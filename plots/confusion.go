// Package plots renders cross-validation results to PDF files: confusion
// matrix heatmaps averaged over repetitions and per-dataset metric
// distribution violins. All renderers are stateless; the output format is
// chosen by the file extension.
package plots

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
)

// Annotation colors for heatmap cells, split at the chance threshold.
var (
	tomato = color.RGBA{R: 255, G: 99, B: 71, A: 255}
	teal   = color.RGBA{R: 0, G: 128, B: 128, A: 255}
)

// confusionGrid adapts one normalized matrix to the heatmap data interface.
// Rows are flipped so the first true class renders at the top.
type confusionGrid struct {
	cm [][]float64
}

func (g confusionGrid) Dims() (c, r int)   { return len(g.cm), len(g.cm) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }
func (g confusionGrid) Z(c, r int) float64 { return g.cm[len(g.cm)-1-r][c] }

// ConfusionMatrix renders one heatmap per dataset from the
// [class][class][rep][dataset] tensor: matrices are averaged over
// repetitions, each row is normalized to percent of its row sum and rounded
// to 3 decimals, and every cell is annotated with its percentage. Cells
// above the uniform-chance level 100/numClasses are annotated in tomato,
// the rest in teal. Files land at basePath + "_" + datasetName + ".pdf".
func ConfusionMatrix(cms [][][][]float64, classNames, datasetNames []string, basePath, title string) error {
	numClasses := len(cms)
	if numClasses < 2 {
		return fmt.Errorf("confusion tensor must cover at least 2 classes, got %d", numClasses)
	}
	if len(classNames) != numClasses {
		return fmt.Errorf("%d class names for %d classes", len(classNames), numClasses)
	}
	for i := range cms {
		if len(cms[i]) != numClasses {
			return fmt.Errorf("confusion tensor is not square: row %d has %d columns", i, len(cms[i]))
		}
	}
	numRep := len(cms[0][0])
	if numRep == 0 {
		return fmt.Errorf("confusion tensor has no repetitions")
	}
	numDatasets := len(cms[0][0][0])
	if len(datasetNames) != numDatasets {
		return fmt.Errorf("%d dataset names for %d datasets", len(datasetNames), numDatasets)
	}

	if err := os.MkdirAll(filepath.Dir(basePath), 0o755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}

	for d, ds := range datasetNames {
		cm := averagePercent(cms, d)
		outPath := fmt.Sprintf("%s_%s.pdf", basePath, ds)
		if err := renderHeatmap(cm, classNames, ds, title, outPath); err != nil {
			return fmt.Errorf("render confusion heatmap for %s: %w", ds, err)
		}
		log.Info().Str("file", outPath).Str("dataset", ds).Msg("Confusion heatmap written")
	}
	return nil
}

// averagePercent averages one dataset's matrices over repetitions and
// normalizes each row to percent of its row sum, rounded to 3 decimals.
// All-zero rows stay zero.
func averagePercent(cms [][][][]float64, d int) [][]float64 {
	numClasses := len(cms)
	numRep := len(cms[0][0])

	cm := make([][]float64, numClasses)
	for i := range cm {
		cm[i] = make([]float64, numClasses)
		for j := range cm[i] {
			sum := 0.0
			for rep := 0; rep < numRep; rep++ {
				sum += cms[i][j][rep][d]
			}
			cm[i][j] = sum / float64(numRep)
		}
	}

	for i := range cm {
		rowSum := 0.0
		for _, v := range cm[i] {
			rowSum += v
		}
		if rowSum == 0 {
			continue
		}
		for j := range cm[i] {
			cm[i][j] = math.Round(cm[i][j]/rowSum*100*1000) / 1000
		}
	}
	return cm
}

func renderHeatmap(cm [][]float64, classNames []string, dataset, title, outPath string) error {
	numClasses := len(cm)

	p := plot.New()
	if title == "" {
		title = "Confusion matrix"
	}
	p.Title.Text = fmt.Sprintf("%s (%s)", title, dataset)
	p.X.Label.Text = "Predicted class"
	p.Y.Label.Text = "True class"

	hm := plotter.NewHeatMap(confusionGrid{cm: cm}, palette.Heat(16, 1))
	hm.Min, hm.Max = 0, 100
	p.Add(hm)

	p.NominalX(classNames...)
	reversed := make([]string, numClasses)
	for i, name := range classNames {
		reversed[numClasses-1-i] = name
	}
	p.NominalY(reversed...)

	thresh := 100.0 / float64(numClasses)
	var data plotter.XYLabels
	for i := 0; i < numClasses; i++ {
		for j := 0; j < numClasses; j++ {
			data.XYs = append(data.XYs, plotter.XY{
				X: float64(j),
				Y: float64(numClasses - 1 - i),
			})
			data.Labels = append(data.Labels, fmt.Sprintf("%.3f%%", cm[i][j]))
		}
	}
	labels, err := plotter.NewLabels(data)
	if err != nil {
		return fmt.Errorf("build cell annotations: %w", err)
	}
	for k := range labels.TextStyle {
		i := k / numClasses
		j := k % numClasses
		labels.TextStyle[k].XAlign = text.XCenter
		labels.TextStyle[k].YAlign = text.YCenter
		if cm[i][j] > thresh {
			labels.TextStyle[k].Color = tomato
		} else {
			labels.TextStyle[k].Color = teal
		}
	}
	p.Add(labels)

	return p.Save(9*vg.Inch, 9*vg.Inch, outPath)
}
