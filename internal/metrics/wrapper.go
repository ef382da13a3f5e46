package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper hands out interface views of the metrics so consumers do
// not have to import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) RunsScored() MetricsCounter {
	return &CounterWrapper{w.m.RunsScored}
}

func (w *MetricsWrapper) CheckpointsWritten() MetricsCounter {
	return &CounterWrapper{w.m.CheckpointsWritten}
}

func (w *MetricsWrapper) PlotsRendered() MetricsCounter {
	return &CounterWrapper{w.m.PlotsRendered}
}

func (w *MetricsWrapper) TrackerPublishFailures() MetricsCounter {
	return &CounterWrapper{w.m.TrackerPublishFailures}
}

func (w *MetricsWrapper) ExperimentProgress() MetricsGauge {
	return &GaugeWrapper{w.m.ExperimentProgress}
}

func (w *MetricsWrapper) ScoreValues() MetricsHistogram {
	return &HistogramWrapper{w.m.ScoreValues}
}

func (w *MetricsWrapper) ReportDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.ReportDuration}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
