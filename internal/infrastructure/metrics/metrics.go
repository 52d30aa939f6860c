// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
)

const namespace = "sentiment_pipeline"

// Recorder implements ports.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	ingested   prometheus.Counter
	duplicates prometheus.Counter
	enqueued   *prometheus.CounterVec
	noMessage  prometheus.Counter
	batches    *prometheus.CounterVec
	scored     prometheus.Counter
	misses     prometheus.Counter
	cycles     prometheus.Histogram
}

var _ ports.Metrics = (*Recorder)(nil)

// NewRecorder registers all collectors, including Go runtime ones.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_ingested_total",
			Help:      "Interactions persisted by the ingestor",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Interactions skipped because their message id already exists",
		}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_total",
			Help:      "Enqueue attempts by outcome",
		}, []string{"status"}),
		noMessage: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_message_skipped_total",
			Help:      "Queue items excluded from scoring because they carry no text",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Scoring batches sent by outcome",
		}, []string{"status"}),
		scored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_scored_total",
			Help:      "Interactions that received a sentiment",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_misses_total",
			Help:      "Scorer results that matched no live queue item",
		}),
		cycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of scoring cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ingested, r.duplicates, r.enqueued, r.noMessage,
		r.batches, r.scored, r.misses, r.cycles,
	)
	return r
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) InteractionsIngested(n int) { r.ingested.Add(float64(n)) }

func (r *Recorder) DuplicatesSkipped(n int) { r.duplicates.Add(float64(n)) }

func (r *Recorder) Enqueued(status domain.EnqueueStatus) {
	r.enqueued.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) NoMessageSkipped(n int) { r.noMessage.Add(float64(n)) }

func (r *Recorder) BatchScored(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	r.batches.WithLabelValues(status).Inc()
}

func (r *Recorder) ItemsScored(n int) { r.scored.Add(float64(n)) }

func (r *Recorder) CorrelationMisses(n int) { r.misses.Add(float64(n)) }

func (r *Recorder) CycleFinished(d time.Duration) { r.cycles.Observe(d.Seconds()) }
