package results

import (
	"fmt"

	"github.com/raamana/psy/scoring"
)

// ClassifyCVResults extends the base store with classification diagnostics:
// per-run confusion matrices and misclassified samplet ids.
type ClassifyCVResults struct {
	CVResults

	confusionMat    map[RunKey][][]float64
	misclfdSamplets map[RunKey][]string
}

// NewClassify constructs a classification store. A nil or empty metric set
// selects scoring.DefaultClassification().
func NewClassify(metricSet []scoring.Metric, numRep int, datasetIDs []string) (*ClassifyCVResults, error) {
	if len(metricSet) == 0 {
		metricSet = scoring.DefaultClassification()
	}
	base, err := New(metricSet, numRep, datasetIDs)
	if err != nil {
		return nil, err
	}
	base.kind = KindClassify
	return &ClassifyCVResults{
		CVResults:       *base,
		confusionMat:    make(map[RunKey][][]float64),
		misclfdSamplets: make(map[RunKey][]string),
	}, nil
}

// AddDiagnostics stores the confusion matrix and misclassified samplet ids
// of one prediction run. The matrix must be square.
func (c *ClassifyCVResults) AddDiagnostics(runID int, datasetID string, confMat [][]float64, misclfdIDs []string) error {
	if err := c.checkKey(runID, datasetID); err != nil {
		return err
	}
	for _, row := range confMat {
		if len(row) != len(confMat) {
			return fmt.Errorf("confusion matrix must be square, got %dx%d",
				len(confMat), len(row))
		}
	}
	key := RunKey{Dataset: datasetID, Run: runID}
	c.confusionMat[key] = confMat
	c.misclfdSamplets[key] = misclfdIDs
	return nil
}

// ConfusionMatrix returns the matrix stored for one run, if any.
func (c *ClassifyCVResults) ConfusionMatrix(runID int, datasetID string) ([][]float64, bool) {
	cm, ok := c.confusionMat[RunKey{Dataset: datasetID, Run: runID}]
	return cm, ok
}

// MisclassifiedSamplets returns the misclassified ids stored for one run.
func (c *ClassifyCVResults) MisclassifiedSamplets(runID int, datasetID string) ([]string, bool) {
	ids, ok := c.misclfdSamplets[RunKey{Dataset: datasetID, Run: runID}]
	return ids, ok
}

// HasDiagnostics reports whether any confusion matrices were recorded.
func (c *ClassifyCVResults) HasDiagnostics() bool {
	return len(c.confusionMat) > 0
}

// ConfusionTensor assembles the [class][class][rep][dataset] array consumed
// by the heatmap renderer. Nil dsIDs selects all datasets. Runs without a
// stored matrix contribute zero matrices; matrices of inconsistent size are
// an error.
func (c *ClassifyCVResults) ConfusionTensor(dsIDs []string) ([][][][]float64, []string, error) {
	if dsIDs == nil {
		dsIDs = c.datasetIDs
	} else {
		for _, id := range dsIDs {
			if !c.hasDataset(id) {
				return nil, nil, fmt.Errorf("dataset %q not recognized: choose from %v",
					id, c.datasetIDs)
			}
		}
	}

	numClasses := 0
	for _, cm := range c.confusionMat {
		if numClasses == 0 {
			numClasses = len(cm)
			continue
		}
		if len(cm) != numClasses {
			return nil, nil, fmt.Errorf("confusion matrices disagree on class count: %d vs %d",
				numClasses, len(cm))
		}
	}
	if numClasses == 0 {
		return nil, nil, fmt.Errorf("no confusion matrices recorded")
	}

	tensor := make([][][][]float64, numClasses)
	for i := range tensor {
		tensor[i] = make([][][]float64, numClasses)
		for j := range tensor[i] {
			tensor[i][j] = make([][]float64, c.numRep)
			for rep := range tensor[i][j] {
				tensor[i][j][rep] = make([]float64, len(dsIDs))
			}
		}
	}

	for d, id := range dsIDs {
		for rep := 0; rep < c.numRep; rep++ {
			cm, ok := c.confusionMat[RunKey{Dataset: id, Run: rep}]
			if !ok {
				continue
			}
			for i := 0; i < numClasses; i++ {
				for j := 0; j < numClasses; j++ {
					tensor[i][j][rep][d] = cm[i][j]
				}
			}
		}
	}

	resolved := append([]string(nil), dsIDs...)
	return tensor, resolved, nil
}
