// Package metrics holds the Prometheus collectors for the flashcard service
// and the scrape handler.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/services"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	PipelineStagesTotal  *prometheus.CounterVec
	PipelineFailures     *prometheus.CounterVec
	ProviderLatency      *prometheus.HistogramVec
	RateLimitedTotal     prometheus.Counter
}

// New creates the collectors on a private registry so tests can build as
// many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PipelineStagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashcards_pipeline_stages_total",
				Help: "Pipeline stage transitions by stage.",
			},
			[]string{"stage"},
		),
		PipelineFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flashcards_pipeline_failures_total",
				Help: "Failed generation requests by error kind.",
			},
			[]string{"kind"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flashcards_provider_latency_seconds",
				Help:    "Language model call latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"provider", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flashcards_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PipelineStagesTotal,
		m.PipelineFailures,
		m.ProviderLatency,
		m.RateLimitedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StageChanged counts pipeline transitions and failure kinds.
func (m *Metrics) StageChanged(_ uuid.UUID, stage services.Stage, err error) {
	m.PipelineStagesTotal.WithLabelValues(string(stage)).Inc()
	if stage == services.StageFailed {
		m.PipelineFailures.WithLabelValues(apperr.KindOf(err).String()).Inc()
	}
}

// InstrumentSynthesizer times every call made through s.
func (m *Metrics) InstrumentSynthesizer(s services.Synthesizer) services.Synthesizer {
	return &instrumentedSynthesizer{next: s, m: m}
}

type instrumentedSynthesizer struct {
	next services.Synthesizer
	m    *Metrics
}

func (i *instrumentedSynthesizer) Name() string { return i.next.Name() }

func (i *instrumentedSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	reply, err := i.next.Synthesize(ctx, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.m.ProviderLatency.WithLabelValues(i.next.Name(), outcome).Observe(time.Since(start).Seconds())
	return reply, err
}
