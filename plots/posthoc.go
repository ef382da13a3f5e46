package plots

import (
	"fmt"

	"github.com/raamana/psy/results"
)

// SummarizeMisclassifications is the planned per-samplet misclassification
// frequency visualization. Declared for API completeness; callers must
// handle results.ErrNotImplemented.
func SummarizeMisclassifications(misclfd map[results.RunKey][]string) error {
	return fmt.Errorf("summarize misclassifications: %w", results.ErrNotImplemented)
}

// StatComparison is the planned statistical comparison of metric
// distributions across datasets. Declared for API completeness; callers
// must handle results.ErrNotImplemented.
func StatComparison(metric [][]float64, datasetNames []string) error {
	return fmt.Errorf("statistical comparison: %w", results.ErrNotImplemented)
}
