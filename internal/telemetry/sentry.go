// Package telemetry reports recorder failures to Sentry. Only categories
// that indicate a fault in the audio stack are sent; caller mistakes such as
// invalid arguments or illegal state transitions stay local.
package telemetry

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
)

const flushTimeout = 2 * time.Second

// Config configures Sentry reporting.
type Config struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// reportedCategories are sent to Sentry; everything else is dropped.
var reportedCategories = []errors.ErrorCategory{
	errors.CategoryAudioBackend,
	errors.CategoryAudioDevice,
	errors.CategoryResource,
	errors.CategoryGeneric,
}

// Option customizes the Sentry client.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Reporter implements errors.TelemetryReporter on a private Sentry hub.
type Reporter struct {
	hub     *sentry.Hub
	enabled atomic.Bool
	log     logger.Logger
}

// NewReporter creates a reporter. A disabled config yields a reporter that
// drops everything without creating a Sentry client.
func NewReporter(cfg Config, release string, opts ...Option) (*Reporter, error) {
	r := &Reporter{log: logger.Global().Module("telemetry")}
	if !cfg.Enabled {
		return r, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	environment := cfg.Environment
	if environment == "" {
		environment = "production"
	}

	options := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       sampleRate,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          fmt.Sprintf("audiocapture@%s", release),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	r.hub = sentry.NewHub(client, sentry.NewScope())
	r.enabled.Store(true)
	r.log.Info("error reporting enabled", logger.String("environment", environment))
	return r, nil
}

// Install makes r the process-wide reporter used by the errors package.
func (r *Reporter) Install() {
	errors.SetTelemetryReporter(r)
}

// IsEnabled implements errors.TelemetryReporter
func (r *Reporter) IsEnabled() bool {
	return r != nil && r.enabled.Load()
}

// ReportError implements errors.TelemetryReporter
func (r *Reporter) ReportError(ee *errors.EnhancedError) {
	if !r.IsEnabled() || ee == nil || ee.IsReported() {
		return
	}
	if !slices.Contains(reportedCategories, ee.Category) {
		return
	}
	ee.MarkReported()

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if op, ok := ee.GetContext()["operation"].(string); ok {
			scope.SetTag("operation", op)
		}
		scope.SetFingerprint([]string{ee.Component, string(ee.Category), ee.Error()})
		scope.SetLevel(sentry.LevelError)
		r.hub.CaptureMessage(errors.ScrubMessage(ee.Error()))
	})
}

// Flush waits for queued events to be sent.
func (r *Reporter) Flush() bool {
	if !r.IsEnabled() {
		return true
	}
	return r.hub.Flush(flushTimeout)
}

// Close flushes and disables the reporter.
func (r *Reporter) Close() {
	if !r.IsEnabled() {
		return
	}
	r.hub.Flush(flushTimeout)
	r.enabled.Store(false)
}

func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = errors.ScrubMessage(event.Message)

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
