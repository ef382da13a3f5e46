package results

import (
	"fmt"

	"github.com/raamana/psy/scoring"
)

// RegressCVResults extends the base store with regression diagnostics:
// per-run residual vectors.
type RegressCVResults struct {
	CVResults

	residuals map[RunKey][]float64
}

// NewRegress constructs a regression store. A nil or empty metric set
// selects scoring.DefaultRegression().
func NewRegress(metricSet []scoring.Metric, numRep int, datasetIDs []string) (*RegressCVResults, error) {
	if len(metricSet) == 0 {
		metricSet = scoring.DefaultRegression()
	}
	base, err := New(metricSet, numRep, datasetIDs)
	if err != nil {
		return nil, err
	}
	base.kind = KindRegress
	return &RegressCVResults{
		CVResults: *base,
		residuals: make(map[RunKey][]float64),
	}, nil
}

// AddDiagnostics computes and stores the residuals (predicted - true) of
// one prediction run.
func (r *RegressCVResults) AddDiagnostics(runID int, datasetID string, trueVals, predicted []float64) error {
	if err := r.checkKey(runID, datasetID); err != nil {
		return err
	}
	if len(trueVals) != len(predicted) {
		return fmt.Errorf("targets length mismatch: %d true vs %d predicted",
			len(trueVals), len(predicted))
	}
	residuals := make([]float64, len(trueVals))
	for i := range trueVals {
		residuals[i] = predicted[i] - trueVals[i]
	}
	r.residuals[RunKey{Dataset: datasetID, Run: runID}] = residuals
	return nil
}

// Residuals returns the residual vector stored for one run, if any.
func (r *RegressCVResults) Residuals(runID int, datasetID string) ([]float64, bool) {
	res, ok := r.residuals[RunKey{Dataset: datasetID, Run: runID}]
	return res, ok
}

// HasDiagnostics reports whether any residuals were recorded.
func (r *RegressCVResults) HasDiagnostics() bool {
	return len(r.residuals) > 0
}
