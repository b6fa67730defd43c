package mapping

import (
	"time"

	"github.com/c360studio/semstreams/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts match outcomes and model batches. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	results       *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers matcher metrics. A nil registry disables them.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontomap",
			Subsystem: "match",
			Name:      "results_total",
			Help:      "Match results by mode and outcome",
		}, []string{"mode", "outcome"}),

		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontomap",
			Subsystem: "llm",
			Name:      "batches_total",
			Help:      "Model invocation batches by status",
		}, []string{"status"}),

		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ontomap",
			Subsystem: "llm",
			Name:      "batch_duration_seconds",
			Help:      "Model invocation batch latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"status"}),
	}

	if err := registry.RegisterCounterVec("ontomap", "match_results", m.results); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("ontomap", "llm_batches", m.batches); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("ontomap", "llm_batch_duration", m.batchDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) recordResult(mode Mode, outcome Outcome) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(mode), string(outcome)).Inc()
}

func (m *Metrics) recordBatch(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.batches.WithLabelValues(status).Inc()
	m.batchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
