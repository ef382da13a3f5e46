package plots

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/raamana/psy/results"
)

// allOnesTensor builds a [classes][classes][reps][datasets] tensor of ones.
func allOnesTensor(classes, reps, datasets int) [][][][]float64 {
	t := make([][][][]float64, classes)
	for i := range t {
		t[i] = make([][][]float64, classes)
		for j := range t[i] {
			t[i][j] = make([][]float64, reps)
			for rep := range t[i][j] {
				row := make([]float64, datasets)
				for d := range row {
					row[d] = 1
				}
				t[i][j][rep] = row
			}
		}
	}
	return t
}

func assertPDF(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected plot file at %s: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("plot file %s is empty", path)
	}
}

func TestConfusionMatrix_AllOnes(t *testing.T) {
	base := filepath.Join(t.TempDir(), "confusion")
	tensor := allOnesTensor(2, 3, 1)

	err := ConfusionMatrix(tensor, []string{"ctrl", "case"}, []string{"fs1"}, base, "")
	if err != nil {
		t.Fatalf("ConfusionMatrix() error = %v", err)
	}
	assertPDF(t, base+"_fs1.pdf")
}

func TestConfusionMatrix_OneFilePerDataset(t *testing.T) {
	base := filepath.Join(t.TempDir(), "cm")
	tensor := allOnesTensor(3, 2, 2)

	err := ConfusionMatrix(tensor, []string{"a", "b", "c"}, []string{"fs1", "fs2"}, base, "CV confusion")
	if err != nil {
		t.Fatalf("ConfusionMatrix() error = %v", err)
	}
	assertPDF(t, base+"_fs1.pdf")
	assertPDF(t, base+"_fs2.pdf")
}

func TestConfusionMatrix_Validation(t *testing.T) {
	base := filepath.Join(t.TempDir(), "cm")
	tests := []struct {
		name     string
		tensor   [][][][]float64
		classes  []string
		datasets []string
	}{
		{
			name:     "single class",
			tensor:   allOnesTensor(1, 1, 1),
			classes:  []string{"a"},
			datasets: []string{"fs1"},
		},
		{
			name:     "class name count mismatch",
			tensor:   allOnesTensor(2, 1, 1),
			classes:  []string{"a"},
			datasets: []string{"fs1"},
		},
		{
			name:     "dataset name count mismatch",
			tensor:   allOnesTensor(2, 1, 1),
			classes:  []string{"a", "b"},
			datasets: []string{"fs1", "fs2"},
		},
		{
			name: "not square",
			tensor: [][][][]float64{
				{{{1}}, {{1}}},
				{{{1}}},
			},
			classes:  []string{"a", "b"},
			datasets: []string{"fs1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ConfusionMatrix(tt.tensor, tt.classes, tt.datasets, base, ""); err == nil {
				t.Errorf("ConfusionMatrix() expected error, got nil")
			}
		})
	}
}

func TestAveragePercent(t *testing.T) {
	// one rep, one dataset: rows {3,1} and {0,0}
	tensor := [][][][]float64{
		{{{3}}, {{1}}},
		{{{0}}, {{0}}},
	}
	cm := averagePercent(tensor, 0)

	if got := cm[0][0]; got != 75.0 {
		t.Errorf("cm[0][0] = %v, want 75", got)
	}
	if got := cm[0][1]; got != 25.0 {
		t.Errorf("cm[0][1] = %v, want 25", got)
	}
	if cm[1][0] != 0 || cm[1][1] != 0 {
		t.Errorf("all-zero row must stay zero, got %v", cm[1])
	}
}

func TestAveragePercent_AllOnes(t *testing.T) {
	cm := averagePercent(allOnesTensor(2, 3, 1), 0)
	for i := range cm {
		for j := range cm[i] {
			if cm[i][j] != 50.0 {
				t.Errorf("cm[%d][%d] = %v, want 50", i, j, cm[i][j])
			}
		}
	}
}

func TestAveragePercent_Rounding(t *testing.T) {
	// row {1, 2}: 33.333...% and 66.666...% round to 3 decimals
	tensor := [][][][]float64{
		{{{1}}, {{2}}},
		{{{0}}, {{1}}},
	}
	cm := averagePercent(tensor, 0)

	if got := cm[0][0]; math.Abs(got-33.333) > 1e-9 {
		t.Errorf("cm[0][0] = %v, want 33.333", got)
	}
	if got := cm[0][1]; math.Abs(got-66.667) > 1e-9 {
		t.Errorf("cm[0][1] = %v, want 66.667", got)
	}
}

func TestMetricDistribution(t *testing.T) {
	nan := math.NaN()
	values := [][]float64{
		{0.61, 0.58},
		{0.72, nan},
		{0.66, 0.70},
		{0.69, 0.63},
		{nan, 0.65},
	}
	out := filepath.Join(t.TempDir(), "balanced_accuracy")

	err := MetricDistribution(values, []string{"thickness", "curvature"}, out, 2, "balanced accuracy")
	if err != nil {
		t.Fatalf("MetricDistribution() error = %v", err)
	}
	assertPDF(t, out+".pdf")
}

func TestMetricDistribution_KeepsExplicitExtension(t *testing.T) {
	values := [][]float64{{0.5}, {0.6}, {0.7}}
	out := filepath.Join(t.TempDir(), "acc.pdf")

	if err := MetricDistribution(values, []string{"fs1"}, out, 2, "accuracy"); err != nil {
		t.Fatalf("MetricDistribution() error = %v", err)
	}
	assertPDF(t, out)
}

func TestMetricDistribution_DegenerateViolins(t *testing.T) {
	nan := math.NaN()
	// fs1 has a single finite value, fs2 has zero spread: both degrade to
	// the median marker without error
	values := [][]float64{
		{0.8, 0.5},
		{nan, 0.5},
		{nan, 0.5},
	}
	out := filepath.Join(t.TempDir(), "degenerate")

	if err := MetricDistribution(values, []string{"fs1", "fs2"}, out, 2, "accuracy"); err != nil {
		t.Fatalf("MetricDistribution() error = %v", err)
	}
	assertPDF(t, out+".pdf")
}

func TestMetricDistribution_Validation(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x")
	tests := []struct {
		name     string
		values   [][]float64
		datasets []string
	}{
		{name: "no values", values: nil, datasets: []string{"a"}},
		{name: "no datasets", values: [][]float64{{1}}, datasets: nil},
		{name: "ragged rows", values: [][]float64{{1, 2}, {1}}, datasets: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := MetricDistribution(tt.values, tt.datasets, out, 2, "m"); err == nil {
				t.Errorf("MetricDistribution() expected error, got nil")
			}
		})
	}
}

func TestChanceTicks(t *testing.T) {
	ticks := chanceTicks(0.45)
	if len(ticks) != 6 {
		t.Fatalf("got %d ticks, want 6", len(ticks))
	}
	if ticks[0].Value != 0.5 {
		t.Errorf("first tick = %v, want 0.5", ticks[0].Value)
	}
	if got := ticks[len(ticks)-1].Value; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("last tick = %v, want 1.0", got)
	}
}

func TestGaussianKDE(t *testing.T) {
	vals := []float64{0.5, 0.6, 0.7}
	dens := gaussianKDE(vals, 0.05, []float64{0.6, 2.0})
	if dens[0] <= dens[1] {
		t.Errorf("density at the center (%v) should exceed density far away (%v)",
			dens[0], dens[1])
	}
	if dens[1] < 0 {
		t.Errorf("density must be non-negative, got %v", dens[1])
	}
}

func TestStubs_NotImplemented(t *testing.T) {
	if err := SummarizeMisclassifications(nil); !errors.Is(err, results.ErrNotImplemented) {
		t.Errorf("SummarizeMisclassifications() = %v, want ErrNotImplemented", err)
	}
	if err := StatComparison(nil, nil); !errors.Is(err, results.ErrNotImplemented) {
		t.Errorf("StatComparison() = %v, want ErrNotImplemented", err)
	}
}
