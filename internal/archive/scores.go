package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"go.etcd.io/bbolt"

	"github.com/raamana/psy/results"
)

// RunScoreRecord is one archived score: a single metric value for one run
// on one dataset of one experiment.
type RunScoreRecord struct {
	ExperimentID string  `json:"experiment_id"`
	Metric       string  `json:"metric"`
	Dataset      string  `json:"dataset"`
	Run          int     `json:"run"`
	Score        float64 `json:"score"`
}

// runScoreKey builds the composite key for one run score. The run index is
// zero padded so keys sort in run order under their prefix.
func runScoreKey(expID, metric, dataset string, run int) string {
	return fmt.Sprintf("%s_%s_%s_%05d", expID, metric, dataset, run)
}

// GetRunScores retrieves the archived scores of one metric on one dataset,
// in run order.
func (s *Store) GetRunScores(expID, metric, dataset string) ([]RunScoreRecord, error) {
	var records []RunScoreRecord
	prefix := []byte(fmt.Sprintf("%s_%s_%s_", expID, metric, dataset))

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runScoresBucket))
		c := b.Cursor()

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec RunScoreRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// BuildRecords converts a results store into its archive representation:
// the experiment record plus one score record per finite cell.
func BuildRecords(store results.Store) (ExperimentRecord, []RunScoreRecord, error) {
	summary := store.Summary()
	rec := ExperimentRecord{
		ID:          summary.ID,
		Kind:        summary.Kind,
		CreatedAt:   summary.CreatedAt,
		NumRep:      summary.NumRep,
		DatasetIDs:  summary.DatasetIDs,
		MetricNames: summary.MetricNames,
		Count:       summary.Count,
		Summaries:   summary.Metrics,
		Meta:        summary.Meta,
	}

	var scores []RunScoreRecord
	for _, metric := range summary.MetricNames {
		values, datasets, err := store.ToArray(metric, nil)
		if err != nil {
			return ExperimentRecord{}, nil, fmt.Errorf("collect %s scores: %w", metric, err)
		}
		for run, row := range values {
			for d, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				scores = append(scores, RunScoreRecord{
					ExperimentID: summary.ID,
					Metric:       metric,
					Dataset:      datasets[d],
					Run:          run,
					Score:        v,
				})
			}
		}
	}

	return rec, scores, nil
}
