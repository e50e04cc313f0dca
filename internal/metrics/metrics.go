// Package metrics exposes Prometheus instruments for the web service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	TranscriptionsTotal   *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	ModelReady            prometheus.Gauge
	HTTPRequestsTotal     *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, so instances never
// collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		// Labels: source (web), status (success/error)
		TranscriptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transkribera_transcriptions_total",
				Help: "Total number of transcriptions by source and outcome",
			},
			[]string{"source", "status"},
		),
		TranscriptionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transkribera_transcription_duration_seconds",
				Help:    "Wall-clock transcription time in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
		),
		ModelReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transkribera_model_ready",
				Help: "Model readiness (0=not ready, 1=ready)",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transkribera_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}
}

func (m *Metrics) RecordTranscription(source string, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.TranscriptionsTotal.WithLabelValues(source, status).Inc()
	m.TranscriptionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) SetModelReady(ready bool) {
	if ready {
		m.ModelReady.Set(1)
	} else {
		m.ModelReady.Set(0)
	}
}

func (m *Metrics) RecordRequest(route, status string) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}

// Handler serves the exposition format for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
