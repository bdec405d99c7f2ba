// Package metrics exposes pipeline counters and latencies for Prometheus.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carefolio/records/pkg/errors"
)

const namespace = "carefolio"

// Pipeline stages.
const (
	StageStore  = "store"
	StageAttest = "attest"
	StageIndex  = "index"
)

// Operation outcomes.
const (
	OutcomeDone    = "done"
	OutcomeFailed  = "failed"
	OutcomePartial = "partial"
)

// Recorder holds the registered collectors.
type Recorder struct {
	stageTotal     *prometheus.CounterVec
	stageSeconds   *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	pendingIntents prometheus.Gauge
	repairs        *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Pipeline stage executions by operation, stage and error code.",
		}, []string{"operation", "stage", "code"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation", "stage"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Orchestrated writes by final outcome.",
		}, []string{"operation", "outcome"}),
		pendingIntents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_intents",
			Help:      "Intents awaiting index repair at the last reconciler pass.",
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_repairs_total",
			Help:      "Index-only repairs by kind and result.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(r.stageTotal, r.stageSeconds, r.operations, r.pendingIntents, r.repairs)
	return r
}

// ObserveStage records one stage run that began at started.
func (r *Recorder) ObserveStage(operation, stage string, started time.Time, err error) {
	if r == nil {
		return
	}
	r.stageTotal.WithLabelValues(operation, stage, errors.GetErrorCode(err)).Inc()
	r.stageSeconds.WithLabelValues(operation, stage).Observe(time.Since(started).Seconds())
}

// ObserveOutcome records the final outcome of an operation.
func (r *Recorder) ObserveOutcome(operation, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveRepair records an index repair.
func (r *Recorder) ObserveRepair(kind string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.repairs.WithLabelValues(kind, result).Inc()
}

// SetPendingIntents publishes the open intent count.
func (r *Recorder) SetPendingIntents(n int) {
	if r == nil {
		return
	}
	r.pendingIntents.Set(float64(n))
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
