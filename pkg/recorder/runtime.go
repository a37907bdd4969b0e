package recorder

import (
	"context"
	"net/http"

	"github.com/spf13/afero"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/capture"
	"github.com/tphakala/audiocapture/internal/conf"
	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/observability"
	"github.com/tphakala/audiocapture/internal/observability/metrics"
	"github.com/tphakala/audiocapture/internal/ring"
	"github.com/tphakala/audiocapture/internal/status"
	"github.com/tphakala/audiocapture/internal/telemetry"
)

// Runtime holds the process-wide services recorders share: settings, the
// central logger, metrics, error reporting and the backend loaders.
type Runtime struct {
	settings *conf.Settings
	log      *logger.CentralLogger
	metrics  *observability.Metrics
	reporter *telemetry.Reporter
	registry *backend.Registry
}

type setupOptions struct {
	fs   afero.Fs
	file string
}

// SetupOption customizes Setup.
type SetupOption func(*setupOptions)

// WithFs reads configuration from fs.
func WithFs(fs afero.Fs) SetupOption {
	return func(o *setupOptions) { o.fs = fs }
}

// Setup loads configuration from configFile, or from the default search
// paths when configFile is empty, and builds the runtime. The central
// logger and the error reporter become process-wide.
func Setup(configFile string, opts ...SetupOption) (*Runtime, error) {
	o := setupOptions{fs: afero.NewOsFs(), file: configFile}
	for _, opt := range opts {
		opt(&o)
	}

	loadOpts := []conf.LoadOption{conf.WithFs(o.fs)}
	if o.file != "" {
		loadOpts = append(loadOpts, conf.WithConfigFile(o.file))
	}
	settings, err := conf.Load(loadOpts...)
	if err != nil {
		return nil, status.Wrap(status.InvalidArgument, "recorder", "setup", err)
	}
	return NewRuntime(settings)
}

// NewRuntime builds a runtime from already loaded settings.
func NewRuntime(settings *conf.Settings) (*Runtime, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, status.Wrap(status.IoError, "recorder", "setup_logging", err)
	}
	logger.SetGlobal(cl)

	rt := &Runtime{settings: settings, log: cl}

	rt.reporter, err = telemetry.NewReporter(settings.Telemetry, capture.Version())
	if err != nil {
		_ = cl.Close()
		return nil, status.Wrap(status.InvalidArgument, "recorder", "setup_telemetry", err)
	}
	if rt.reporter.IsEnabled() {
		rt.reporter.Install()
	}

	if settings.Metrics.Enabled {
		rt.metrics, err = observability.NewMetrics()
		if err != nil {
			rt.Close()
			return nil, status.Wrap(status.RuntimeError, "recorder", "setup_metrics", err)
		}
	}

	rt.registry, err = capture.NewRegistry(cl.Module("audiocapture"), rt.captureMetrics(), capture.VirtualOptions(settings)...)
	if err != nil {
		rt.Close()
		return nil, status.Wrap(status.RuntimeError, "recorder", "setup_backends", err)
	}
	return rt, nil
}

// New opens a recorder on the configured backend. cfg overrides the frame
// geometry and device of the loaded settings.
func (rt *Runtime) New(ctx context.Context, cfg Config) (*Recorder, error) {
	loader, err := rt.loader()
	if err != nil {
		return nil, err
	}

	session, err := capture.Open(ctx, loader, rt.sessionOptions(cfg))
	if err != nil {
		return nil, err
	}
	return &Recorder{session: session}, nil
}

// sessionOptions layers cfg over the loaded settings.
func (rt *Runtime) sessionOptions(cfg Config) capture.Options {
	opts := capture.OptionsFromSettings(rt.settings, rt.log.Module("audiocapture"), rt.captureMetrics())
	opts.FrameLength = cfg.FrameLength
	opts.DeviceIndex = cfg.DeviceIndex
	if cfg.BufferedFrames != 0 {
		opts.BufferedFrames = cfg.BufferedFrames
	}
	if cfg.LogOverflow != nil {
		opts.LogOverflow = *cfg.LogOverflow
	}
	if cfg.LogSilence != nil {
		opts.LogSilence = *cfg.LogSilence
	}
	if cfg.OnFrame != nil {
		onFrame := cfg.OnFrame
		opts.OnFrame = func(frame ring.Frame) { onFrame(frame) }
	}
	return opts
}

// AvailableDevices lists the capture devices of the configured backend in
// index order.
func (rt *Runtime) AvailableDevices(ctx context.Context) ([]string, error) {
	loader, err := rt.loader()
	if err != nil {
		return nil, err
	}
	return capture.AvailableDevices(ctx, loader)
}

// MetricsHandler serves Prometheus metrics, or 404 when metrics are
// disabled.
func (rt *Runtime) MetricsHandler() http.Handler {
	if rt.metrics == nil {
		return http.NotFoundHandler()
	}
	return rt.metrics.Handler()
}

// Close flushes error reports and closes the log file. Recorders must be
// deleted first.
func (rt *Runtime) Close() {
	if rt.reporter.IsEnabled() {
		rt.reporter.Close()
		errors.SetTelemetryReporter(nil)
	}
	if err := rt.log.Close(); err != nil {
		logger.Global().Module("audiocapture").Warn("failed to close log file", logger.Error(err))
	}
}

func (rt *Runtime) loader() (*backend.Loader, error) {
	loader, err := rt.registry.Loader(rt.settings.Recorder.Backend)
	if err != nil {
		return nil, status.Wrap(status.InvalidArgument, "recorder", "select_backend", err)
	}
	return loader, nil
}

func (rt *Runtime) captureMetrics() *metrics.CaptureMetrics {
	if rt.metrics == nil {
		return nil
	}
	return rt.metrics.Capture
}
