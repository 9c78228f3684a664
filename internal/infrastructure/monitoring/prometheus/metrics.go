package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/pkg/errors"
)

// Run outcomes reported by RecordRun.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// GenerationMetrics holds the structure generator metrics and implements
// generation.Recorder.
type GenerationMetrics struct {
	collector MetricsCollector

	CandidatesTotal  CounterVec
	AcceptedTotal    CounterVec
	RejectedTotal    CounterVec
	WorkingSet       GaugeVec
	RunsTotal        CounterVec
	RunDuration      HistogramVec
	StructuresPerRun GaugeVec
}

var _ generation.Recorder = (*GenerationMetrics)(nil)

// NewGenerationMetrics registers every generator metric on collector.
func NewGenerationMetrics(collector MetricsCollector) *GenerationMetrics {
	return &GenerationMetrics{
		collector: collector,
		CandidatesTotal: collector.RegisterCounter("candidates_total",
			"Candidate molecules produced by one-step extension"),
		AcceptedTotal: collector.RegisterCounter("structures_accepted_total",
			"Saturated connected structures with a new identity"),
		RejectedTotal: collector.RegisterCounter("structures_rejected_total",
			"Saturated candidates that did not pass acceptance", "reason"),
		WorkingSet: collector.RegisterGauge("working_set_size",
			"Current size of the generation working set"),
		RunsTotal: collector.RegisterCounter("runs_total",
			"Completed generation runs", "status"),
		RunDuration: collector.RegisterHistogram("run_duration_seconds",
			"Wall-clock duration of a generation run", nil),
		StructuresPerRun: collector.RegisterGauge("run_structures",
			"Structures accepted by the last run"),
	}
}

// CandidatesGenerated implements generation.Recorder.
func (m *GenerationMetrics) CandidatesGenerated(n int) {
	m.CandidatesTotal.WithLabelValues().Add(float64(n))
}

// StructureAccepted implements generation.Recorder.
func (m *GenerationMetrics) StructureAccepted() {
	m.AcceptedTotal.WithLabelValues().Inc()
}

// StructureRejected implements generation.Recorder.
func (m *GenerationMetrics) StructureRejected(reason string) {
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// WorkingSetSize implements generation.Recorder.
func (m *GenerationMetrics) WorkingSetSize(n int) {
	m.WorkingSet.WithLabelValues().Set(float64(n))
}

// RecordRun records the outcome of a finished run.
func (m *GenerationMetrics) RecordRun(d time.Duration, accepted int64, err error) {
	status := RunStatusSuccess
	if err != nil {
		status = RunStatusFailed
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues().Observe(d.Seconds())
	m.StructuresPerRun.WithLabelValues().Set(float64(accepted))
}

// Handler serves the collector's metrics for scraping during a run.
func (m *GenerationMetrics) Handler() http.Handler {
	return m.collector.Handler()
}

// WriteTextfile writes the collector's metrics in the text exposition format
// to path, for pickup by the node exporter textfile collector.
func (m *GenerationMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.collector.Gatherer()); err != nil {
		return errors.Wrap(err, errors.ErrCodeMetricsError, "failed to write metrics textfile").
			WithDetail(path)
	}
	return nil
}

// Push sends the collector's metrics to a Pushgateway under job, grouped by
// run id when one is given.
func (m *GenerationMetrics) Push(ctx context.Context, url, job, runID string) error {
	p := push.New(url, job).Gatherer(m.collector.Gatherer())
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeMetricsError, "failed to push metrics").
			WithDetail(url)
	}
	return nil
}
