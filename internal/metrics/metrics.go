// Package metrics provides Prometheus instrumentation for cross-validation
// experiments: run scoring throughput, experiment progress, checkpoint and
// report activity, and tracker publishing health. Metrics are exposed via
// the monitor's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the experiment pipeline.
type Metrics struct {
	// Scoring metrics
	RunsScored         prometheus.Counter   // Total number of CV runs scored
	ScoreValues        prometheus.Histogram // Distribution of per-run metric scores
	ExperimentProgress prometheus.Gauge     // Fraction of the run grid filled so far

	// Artifact metrics
	CheckpointsWritten prometheus.Counter   // Total number of checkpoint files written
	PlotsRendered      prometheus.Counter   // Total number of plot files rendered
	ReportDuration     prometheus.Histogram // Duration of report generation in seconds

	// Publishing metrics
	TrackerPublishFailures prometheus.Counter // Total number of failed tracker publishes
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		RunsScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "psy_runs_scored_total",
			Help: "Total number of cross-validation runs scored",
		}),
		ScoreValues: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "psy_score_value",
			Help:    "Distribution of per-run metric scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ExperimentProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "psy_experiment_progress",
			Help: "Fraction of the repetition x dataset grid filled so far",
		}),
		CheckpointsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "psy_checkpoints_written_total",
			Help: "Total number of checkpoint files written",
		}),
		PlotsRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "psy_plots_rendered_total",
			Help: "Total number of plot files rendered",
		}),
		ReportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "psy_report_duration_seconds",
			Help:    "Duration of report generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TrackerPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "psy_tracker_publish_failures_total",
			Help: "Total number of failed experiment publishes",
		}),
	}
}

// SetProgress updates the progress gauge from the number of runs recorded
// against the full repetition x dataset grid.
func (m *Metrics) SetProgress(count, numRep, numDatasets int) {
	total := numRep * numDatasets
	if total <= 0 {
		return
	}
	m.ExperimentProgress.Set(float64(count) / float64(total))
}
