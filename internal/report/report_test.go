package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raamana/psy/results"
	"github.com/raamana/psy/scoring"
)

func newClassifyStore(t *testing.T) *results.ClassifyCVResults {
	t.Helper()
	cv, err := results.NewClassify(
		[]scoring.Metric{{Name: "accuracy", Score: scoring.Accuracy}},
		2, []string{"thickness", "curvature"})
	if err != nil {
		t.Fatalf("NewClassify() failed: %v", err)
	}

	trueVals := []float64{1, 1, 0, 0}
	pred := []float64{1, 0, 0, 0}
	for _, ds := range []string{"thickness", "curvature"} {
		if err := cv.Add(0, ds, pred, trueVals); err != nil {
			t.Fatalf("Add(0, %s) failed: %v", ds, err)
		}
		cm := [][]float64{{2, 0}, {1, 1}}
		if err := cv.AddDiagnostics(0, ds, cm, []string{"sub-02"}); err != nil {
			t.Fatalf("AddDiagnostics(0, %s) failed: %v", ds, err)
		}
	}
	if err := cv.Add(1, "thickness", trueVals, trueVals); err != nil {
		t.Fatalf("Add(1, thickness) failed: %v", err)
	}
	return cv
}

func assertFileNonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected artifact %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Errorf("artifact %s is empty", path)
	}
}

func TestGenerate_ClassifyArtifacts(t *testing.T) {
	outDir := t.TempDir()
	reporter := NewReporter(newClassifyStore(t), outDir)

	files, err := reporter.Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	want := []string{
		filepath.Join(outDir, "summary.txt"),
		filepath.Join(outDir, "scores.csv"),
		filepath.Join(outDir, "report.json"),
		filepath.Join(outDir, "confusion_thickness.pdf"),
		filepath.Join(outDir, "confusion_curvature.pdf"),
		filepath.Join(outDir, "compare_accuracy.pdf"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %d artifacts, got %d: %v", len(want), len(files), files)
	}
	for _, path := range want {
		assertFileNonEmpty(t, path)
		found := false
		for _, f := range files {
			if f == path {
				found = true
			}
		}
		if !found {
			t.Errorf("artifact %s missing from returned list", path)
		}
	}
}

func TestGenerate_SummaryContent(t *testing.T) {
	outDir := t.TempDir()
	store := newClassifyStore(t)
	reporter := NewReporter(store, outDir)

	if _, err := reporter.Generate(); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "summary.txt"))
	if err != nil {
		t.Fatalf("failed to read summary: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, store.ID()) {
		t.Error("summary missing experiment id")
	}
	if !strings.Contains(text, "Kind: classify") {
		t.Error("summary missing experiment kind")
	}
	if !strings.Contains(text, "Runs recorded: 3 of 4") {
		t.Error("summary missing run counts")
	}
	if !strings.Contains(text, "accuracy") {
		t.Error("summary missing metric table")
	}
}

func TestGenerate_ScoresCSV(t *testing.T) {
	outDir := t.TempDir()
	reporter := NewReporter(newClassifyStore(t), outDir)

	if _, err := reporter.Generate(); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	file, err := os.Open(filepath.Join(outDir, "scores.csv"))
	if err != nil {
		t.Fatalf("failed to open scores.csv: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse scores.csv: %v", err)
	}

	// Header plus one row per metric x run x dataset cell.
	if len(rows) != 1+2*2 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "metric,dataset,run,score" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	scoreByCell := make(map[string]string)
	for _, row := range rows[1:] {
		scoreByCell[row[1]+"/"+row[2]] = row[3]
	}
	if scoreByCell["thickness/0"] != "0.750000" {
		t.Errorf("unexpected score for thickness run 0: %q", scoreByCell["thickness/0"])
	}
	if scoreByCell["thickness/1"] != "1.000000" {
		t.Errorf("unexpected score for thickness run 1: %q", scoreByCell["thickness/1"])
	}
	// The unfilled cell stays empty rather than printing NaN.
	if scoreByCell["curvature/1"] != "" {
		t.Errorf("expected empty score for curvature run 1, got %q", scoreByCell["curvature/1"])
	}
}

func TestGenerate_JSONReport(t *testing.T) {
	outDir := t.TempDir()
	store := newClassifyStore(t)
	reporter := NewReporter(store, outDir)

	if _, err := reporter.Generate(); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "report.json"))
	if err != nil {
		t.Fatalf("failed to read report.json: %v", err)
	}

	var doc struct {
		Summary results.Summary `json:"summary"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("failed to decode report.json: %v", err)
	}
	if doc.Summary.ID != store.ID() {
		t.Errorf("report id = %s, want %s", doc.Summary.ID, store.ID())
	}
	if doc.Summary.Count != 3 {
		t.Errorf("report count = %d, want 3", doc.Summary.Count)
	}
}

func TestGenerate_RegressStore(t *testing.T) {
	cv, err := results.NewRegress(
		[]scoring.Metric{{Name: "mean_absolute_error", Score: scoring.MeanAbsoluteError}},
		2, []string{"volumes"})
	if err != nil {
		t.Fatalf("NewRegress() failed: %v", err)
	}
	if err := cv.Add(0, "volumes", []float64{1.5, 2.0}, []float64{1.0, 2.0}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	outDir := t.TempDir()
	files, err := NewReporter(cv, outDir).Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	assertFileNonEmpty(t, filepath.Join(outDir, "compare_mean_absolute_error.pdf"))
	for _, f := range files {
		if strings.Contains(f, "confusion") {
			t.Errorf("regression report should not render confusion plots: %s", f)
		}
	}
}

func TestGenerate_EmptyStore(t *testing.T) {
	cv, err := results.NewClassify(
		[]scoring.Metric{{Name: "accuracy", Score: scoring.Accuracy}},
		2, []string{"thickness"})
	if err != nil {
		t.Fatalf("NewClassify() failed: %v", err)
	}

	outDir := t.TempDir()
	files, err := NewReporter(cv, outDir).Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	// Text artifacts are always written, plots need data.
	if len(files) != 3 {
		t.Fatalf("expected 3 artifacts for an empty store, got %d: %v", len(files), files)
	}
	for _, f := range files {
		if strings.HasSuffix(f, ".pdf") {
			t.Errorf("empty store should not render plots: %s", f)
		}
	}
}

type countingMetric struct {
	incs     int
	observed []float64
}

func (c *countingMetric) Inc()              { c.incs++ }
func (c *countingMetric) Observe(v float64) { c.observed = append(c.observed, v) }

func TestGenerate_ReportsMetrics(t *testing.T) {
	outDir := t.TempDir()
	reporter := NewReporter(newClassifyStore(t), outDir)

	m := &countingMetric{}
	reporter.SetMetrics(m, m)

	if _, err := reporter.Generate(); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	// Two confusion heatmaps plus one distribution plot.
	if m.incs != 3 {
		t.Errorf("plots rendered = %d, want 3", m.incs)
	}
	if len(m.observed) != 1 {
		t.Fatalf("expected one duration observation, got %d", len(m.observed))
	}
	if m.observed[0] < 0 {
		t.Errorf("negative duration observed: %f", m.observed[0])
	}
}
