package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions       *prometheus.CounterVec
	producerCalls   *prometheus.CounterVec
	producerLatency *prometheus.HistogramVec
	droppedSignals  prometheus.Counter
	storeConflicts  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	thresholds      *prometheus.GaugeVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_decisions_total",
				Help: "Decisions produced, by pair, direction and outcome (accepted or rejection category)",
			},
			[]string{"pair", "direction", "outcome"},
		),
		producerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_producer_calls_total",
				Help: "Producer invocations by module and status",
			},
			[]string{"module", "status"},
		),
		producerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_producer_duration_seconds",
				Help:    "Producer call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module"},
		),
		droppedSignals: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fusion_dropped_signals_total",
				Help: "Signals dropped before fusion for invalid weight, strength or probability",
			},
		),
		storeConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_store_conflicts_total",
				Help: "Compare-and-set conflicts on the state store",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		thresholds: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fusion_adaptive_threshold",
				Help: "Current adaptive acceptance thresholds",
			},
			[]string{"name"},
		),
	}
}

func (r *Recorder) RecordDecision(pair, direction, outcome string) {
	r.decisions.WithLabelValues(pair, direction, outcome).Inc()
}

func (r *Recorder) RecordProducer(moduleID, status string, seconds float64) {
	r.producerCalls.WithLabelValues(moduleID, status).Inc()
	r.producerLatency.WithLabelValues(moduleID).Observe(seconds)
}

func (r *Recorder) RecordDroppedSignals(n int) {
	if n > 0 {
		r.droppedSignals.Add(float64(n))
	}
}

func (r *Recorder) RecordStoreConflict(kind string) {
	r.storeConflicts.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordThresholds(entropy, confluence, edge float64) {
	r.thresholds.WithLabelValues("entropy_current").Set(entropy)
	r.thresholds.WithLabelValues("confluence_adaptive").Set(confluence)
	r.thresholds.WithLabelValues("edge_adaptive").Set(edge)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDecision(string, string, string)      {}
func (Nop) RecordProducer(string, string, float64)     {}
func (Nop) RecordDroppedSignals(int)                   {}
func (Nop) RecordStoreConflict(string)                 {}
func (Nop) RecordError(string)                         {}
func (Nop) RecordLatency(string, float64)              {}
func (Nop) RecordThresholds(float64, float64, float64) {}
