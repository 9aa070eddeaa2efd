// Package metrics exposes batch run and LLM call metrics in the Prometheus
// text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phrazzld/llmbatch/internal/generation"
	"github.com/phrazzld/llmbatch/internal/task"
)

const namespace = "llmbatch"

// Item outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Recorder implements task.Observer and generation.AttemptObserver on top of
// its own registry, so several recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	// Run metrics
	ItemsProcessed *prometheus.CounterVec // labels: outcome
	ItemsTotal     prometheus.Gauge
	ItemsPending   prometheus.Gauge
	ItemDuration   prometheus.Histogram
	RunsStarted    prometheus.Counter

	// LLM metrics
	Attempts        *prometheus.CounterVec   // labels: outcome
	AttemptDuration *prometheus.HistogramVec // labels: outcome
}

var (
	_ task.Observer              = (*Recorder)(nil)
	_ generation.AttemptObserver = (*Recorder)(nil)
)

// New creates a Recorder with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Total number of dataset items that reached a final state",
		}, []string{"outcome"}),
		ItemsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Number of items pending when the current run started",
		}),
		ItemsPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_pending",
			Help:      "Number of items of the current run not finished yet",
		}),
		ItemDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Time taken to process one item, including retries",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of batch runs started",
		}),

		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Total number of completion attempts",
		}, []string{"outcome"}),
		AttemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempt_duration_seconds",
			Help:      "Latency of a single completion attempt",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
	}
}

// RunStarted implements task.Observer.
func (r *Recorder) RunStarted(_ string, p task.Progress) {
	r.RunsStarted.Inc()
	r.ItemsTotal.Set(float64(p.Total))
	r.ItemsPending.Set(float64(p.Pending))
}

// ItemFinished implements task.Observer.
func (r *Recorder) ItemFinished(res task.Result, p task.Progress) {
	r.ItemsProcessed.WithLabelValues(outcome(res)).Inc()
	r.ItemsPending.Set(float64(p.Pending))
	r.ItemDuration.Observe(res.Elapsed.Seconds())
}

// ObserveAttempt implements generation.AttemptObserver.
func (r *Recorder) ObserveAttempt(outcome string, d time.Duration) {
	r.Attempts.WithLabelValues(outcome).Inc()
	r.AttemptDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Registry returns the registry all metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcome(res task.Result) string {
	switch {
	case res.Err != nil:
		return OutcomeFailed
	case res.Skipped():
		return OutcomeSkipped
	default:
		return OutcomeCompleted
	}
}
