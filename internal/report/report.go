// Package report renders the artifacts of an experiment: a human-readable
// summary, a CSV of raw scores, a JSON summary and the comparison plots.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raamana/psy/plots"
	"github.com/raamana/psy/results"
)

// Counter counts rendered plot files.
type Counter interface {
	Inc()
}

// DurationHistogram observes report generation time in seconds.
type DurationHistogram interface {
	Observe(float64)
}

// Reporter generates experiment reports
type Reporter struct {
	store  results.Store
	outDir string

	plotsRendered Counter
	duration      DurationHistogram
}

// NewReporter creates a new reporter writing into outDir.
func NewReporter(store results.Store, outDir string) *Reporter {
	return &Reporter{
		store:  store,
		outDir: outDir,
	}
}

// SetMetrics sets the metrics interfaces for reporting.
func (r *Reporter) SetMetrics(plotsRendered Counter, duration DurationHistogram) {
	r.plotsRendered = plotsRendered
	r.duration = duration
}

// Generate renders all report formats and returns the artifact paths.
func (r *Reporter) Generate() ([]string, error) {
	start := time.Now()

	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var artifacts []string

	path, err := r.generateSummary()
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, path)

	path, err = r.generateScoreLog()
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, path)

	path, err = r.generateJSONReport()
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, path)

	plotFiles, err := r.generatePlots()
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, plotFiles...)

	if r.duration != nil {
		r.duration.Observe(time.Since(start).Seconds())
	}
	return artifacts, nil
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() (string, error) {
	summaryPath := filepath.Join(r.outDir, "summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "CROSS-VALIDATION RESULTS SUMMARY\n")
	fmt.Fprintf(file, "================================\n\n")

	fmt.Fprintf(file, "Experiment: %s\n", r.store.ID())
	fmt.Fprintf(file, "Kind: %s\n", r.store.Kind())
	fmt.Fprintf(file, "Created: %s\n", r.store.CreatedAt().Format("2006-01-02 15:04:05"))
	total := r.store.NumRep() * len(r.store.DatasetIDs())
	fmt.Fprintf(file, "Runs recorded: %d of %d\n\n", r.store.Count(), total)

	fmt.Fprint(file, r.store.String())

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return summaryPath, nil
}

// generateScoreLog generates a CSV log of all recorded scores
func (r *Reporter) generateScoreLog() (string, error) {
	csvPath := filepath.Join(r.outDir, "scores.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("failed to create score log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"metric", "dataset", "run", "score"}
	if err := writer.Write(header); err != nil {
		return "", err
	}

	for _, metric := range r.store.MetricNames() {
		values, datasets, err := r.store.ToArray(metric, nil)
		if err != nil {
			return "", fmt.Errorf("collect %s scores: %w", metric, err)
		}
		for run, row := range values {
			for d, v := range row {
				score := ""
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					score = fmt.Sprintf("%.6f", v)
				}
				record := []string{metric, datasets[d], fmt.Sprintf("%d", run), score}
				if err := writer.Write(record); err != nil {
					return "", err
				}
			}
		}
	}

	log.Info().Str("file", csvPath).Msg("Score log generated")
	return csvPath, nil
}

// generateJSONReport generates a JSON report with the summary data
func (r *Reporter) generateJSONReport() (string, error) {
	jsonPath := filepath.Join(r.outDir, "report.json")

	report := map[string]interface{}{
		"summary":      r.store.Summary(),
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return jsonPath, nil
}

// generatePlots renders the comparison plots: one score distribution per
// metric, plus per-dataset confusion matrices when diagnostics exist.
func (r *Reporter) generatePlots() ([]string, error) {
	var files []string

	numClasses := 0
	if cs, ok := r.store.(*results.ClassifyCVResults); ok && cs.HasDiagnostics() {
		tensor, datasets, err := cs.ConfusionTensor(nil)
		if err != nil {
			return nil, fmt.Errorf("collect confusion matrices: %w", err)
		}
		numClasses = len(tensor)

		classNames := make([]string, numClasses)
		for i := range classNames {
			classNames[i] = fmt.Sprintf("class %d", i)
		}

		base := filepath.Join(r.outDir, "confusion")
		if err := plots.ConfusionMatrix(tensor, classNames, datasets, base, "Confusion matrix"); err != nil {
			return nil, fmt.Errorf("render confusion matrices: %w", err)
		}
		for _, ds := range datasets {
			files = append(files, fmt.Sprintf("%s_%s.pdf", base, ds))
			r.countPlot()
		}
	}

	for _, metric := range r.store.MetricNames() {
		values, datasets, err := r.store.ToArray(metric, nil)
		if err != nil {
			return nil, fmt.Errorf("collect %s scores: %w", metric, err)
		}
		if !hasFinite(values) {
			continue
		}

		outPath := filepath.Join(r.outDir, fmt.Sprintf("compare_%s.pdf", metric))
		if err := plots.MetricDistribution(values, datasets, outPath, numClasses, metric); err != nil {
			return nil, fmt.Errorf("render %s distribution: %w", metric, err)
		}
		files = append(files, outPath)
		r.countPlot()
	}

	return files, nil
}

func (r *Reporter) countPlot() {
	if r.plotsRendered != nil {
		r.plotsRendered.Inc()
	}
}

func hasFinite(values [][]float64) bool {
	for _, row := range values {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
