// Package observability owns the Prometheus registry for the recorder.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/observability/metrics"
)

// Metrics holds the registry and every collector of the module.
type Metrics struct {
	registry *prometheus.Registry
	Capture  *metrics.CaptureMetrics
}

// NewMetrics creates a private registry with capture and Go runtime
// collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.New(err).
			Component("observability").
			Category(errors.CategoryConfiguration).
			Context("collector", "go").
			Build()
	}

	captureMetrics, err := metrics.NewCaptureMetrics(registry)
	if err != nil {
		return nil, errors.New(err).
			Component("observability").
			Category(errors.CategoryConfiguration).
			Context("collector", "capture").
			Build()
	}

	return &Metrics{registry: registry, Capture: captureMetrics}, nil
}

// Registry returns the underlying registry for embedding applications that
// aggregate several registries.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLogger{log: logger.Global().Module("metrics")},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RegisterHandlers mounts the handler at /metrics on mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

type promErrorLogger struct {
	log logger.Logger
}

func (p promErrorLogger) Println(v ...any) {
	p.log.Warn("metrics exposition failed", logger.Any("detail", v))
}
