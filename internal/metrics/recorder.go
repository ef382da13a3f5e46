package metrics

import (
	"math"

	"github.com/raamana/psy/results"
)

// Recorder adapts a Metrics instance to the results observer interfaces so
// a store can be instrumented without the results package knowing about
// Prometheus.
type Recorder struct {
	m     *Metrics
	total int
}

// NewRecorder builds a recorder for an experiment sized numRep x
// numDatasets; the size fixes the denominator of the progress gauge.
func NewRecorder(m *Metrics, numRep, numDatasets int) *Recorder {
	return &Recorder{m: m, total: numRep * numDatasets}
}

// RunScored counts the run, observes its finite scores and updates the
// progress gauge.
func (r *Recorder) RunScored(ev results.RunScore) {
	r.m.RunsScored.Inc()
	for _, score := range ev.Scores {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		r.m.ScoreValues.Observe(score)
	}
	if r.total > 0 {
		r.m.ExperimentProgress.Set(float64(ev.Count) / float64(r.total))
	}
}

// CheckpointWritten counts checkpoint files as they land on disk.
func (r *Recorder) CheckpointWritten(path string) {
	r.m.CheckpointsWritten.Inc()
}
