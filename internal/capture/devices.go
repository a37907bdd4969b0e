package capture

import (
	"context"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/backend/malgo"
	"github.com/tphakala/audiocapture/internal/backend/virtual"
	"github.com/tphakala/audiocapture/internal/catalog"
	"github.com/tphakala/audiocapture/internal/conf"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/observability/metrics"
	"github.com/tphakala/audiocapture/internal/status"
)

// AvailableDevices returns the names of the capture devices currently
// present, in index order. No devices yields an empty slice.
func AvailableDevices(ctx context.Context, loader *backend.Loader) ([]string, error) {
	b, err := loader.Acquire()
	if err != nil {
		return nil, status.Wrap(status.BackendError, component, "available_devices", err)
	}
	defer func() {
		if err := loader.Release(); err != nil {
			logger.Global().Module("capture").Warn("failed to release backend", logger.Error(err))
		}
	}()

	return catalog.New(b).Names(ctx)
}

// NewRegistry returns a registry with the miniaudio and virtual backends.
// vopts configure the virtual backend. Backend instances are counted in m,
// which may be nil.
func NewRegistry(log logger.Logger, m *metrics.CaptureMetrics, vopts ...virtual.Option) (*backend.Registry, error) {
	if log == nil {
		log = logger.Global().Module("audiocapture")
	}
	r := backend.NewRegistry(log.Module("backend"))
	r.SetLoadObserver(m.BackendLoaded)
	if err := r.Register(malgo.Name, malgo.Factory(log.Module("malgo"))); err != nil {
		return nil, err
	}
	if err := r.Register(virtual.Name, virtual.Factory(vopts...)); err != nil {
		return nil, err
	}
	return r, nil
}

// OptionsFromSettings maps recorder settings to session options.
func OptionsFromSettings(settings *conf.Settings, log logger.Logger, m *metrics.CaptureMetrics) Options {
	r := settings.Recorder
	return Options{
		FrameLength:         r.FrameLength,
		DeviceIndex:         r.DeviceIndex,
		BufferedFrames:      r.BufferedFrames,
		LogOverflow:         r.LogOverflow,
		LogSilence:          r.LogSilence,
		Debug:               r.Debug,
		SilenceThreshold:    r.SilenceThreshold,
		SilenceWindow:       r.SilenceWindow,
		Logger:              log,
		Metrics:             m,
		DiagnosticsInterval: settings.Diagnostics.Interval,
		DiagnosticsBurst:    settings.Diagnostics.Burst,
	}
}

// VirtualOptions maps the virtual backend settings to backend options.
func VirtualOptions(settings *conf.Settings) []virtual.Option {
	tone := settings.Recorder.VirtualTone
	if tone.Frequency <= 0 {
		return nil
	}
	return []virtual.Option{virtual.WithTone(tone.Frequency, int16(tone.Amplitude))}
}
