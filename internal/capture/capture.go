// Package capture implements the recorder engine: one Session owns an opened
// capture device, a FrameRing fed by the backend's capture thread, overflow
// and silence detection, and the start/stop/delete lifecycle.
//
// Frames reach the caller either by pull (Read blocks for one frame) or by
// push (Options.OnFrame runs on the capture thread for every frame). Both
// strategies go through the same ring, so overflow behaves identically.
package capture

import (
	"time"

	"github.com/tphakala/audiocapture/internal/catalog"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/observability/metrics"
	"github.com/tphakala/audiocapture/internal/ring"
	"github.com/tphakala/audiocapture/internal/status"
)

const (
	// version is the engine version reported by Version.
	version = "1.2.0"

	// sampleRate is requested from every backend. The backend converts
	// from the device's native rate.
	sampleRate = 16000

	component = "capture"

	// DefaultDeviceIndex selects the system default input device.
	DefaultDeviceIndex = catalog.DefaultIndex
	// DefaultBufferedFrames is the ring depth used when none is given.
	DefaultBufferedFrames = 50
	// DefaultSilenceThreshold is the largest |sample| counted as silent.
	DefaultSilenceThreshold = 1

	defaultDiagnosticsInterval = time.Second
	defaultDiagnosticsBurst    = 3
	eventQueueSize             = 16
)

// Version returns the engine version.
func Version() string { return version }

// SampleRate returns the fixed capture rate in Hz.
func SampleRate() int { return sampleRate }

// FrameFunc receives one frame on the capture thread. The slice is reused
// after the call returns; clone it to keep it. FrameFunc must not block.
type FrameFunc func(frame ring.Frame)

// Options configures a Session.
type Options struct {
	FrameLength    int
	DeviceIndex    int // DefaultDeviceIndex or a catalog index
	BufferedFrames int

	LogOverflow bool
	LogSilence  bool
	Debug       bool

	// SilenceThreshold is the largest |sample| that counts as silent.
	SilenceThreshold int
	// SilenceWindow is the number of consecutive silent samples that
	// triggers a silence event. Zero means two seconds of audio.
	SilenceWindow int

	// OnFrame selects push mode. Read is rejected in push mode.
	OnFrame FrameFunc

	Logger  logger.Logger // nil uses the global logger
	Metrics *metrics.CaptureMetrics

	// DiagnosticsInterval and DiagnosticsBurst throttle repeated warnings.
	DiagnosticsInterval time.Duration
	DiagnosticsBurst    int
}

// DefaultOptions returns options for the default device with the given
// frame length.
func DefaultOptions(frameLength int) Options {
	return Options{
		FrameLength:      frameLength,
		DeviceIndex:      DefaultDeviceIndex,
		BufferedFrames:   DefaultBufferedFrames,
		LogOverflow:      true,
		LogSilence:       true,
		SilenceThreshold: DefaultSilenceThreshold,
	}
}

// validate checks the caller-supplied dimensions before any resource is
// allocated.
func (o *Options) validate() error {
	switch {
	case o.FrameLength <= 0:
		return status.Newf(status.InvalidArgument, component, "open",
			"frame length must be positive, got %d", o.FrameLength)
	case o.BufferedFrames <= 0:
		return status.Newf(status.InvalidArgument, component, "open",
			"buffered frames count must be positive, got %d", o.BufferedFrames)
	case o.DeviceIndex < DefaultDeviceIndex:
		return status.Newf(status.InvalidArgument, component, "open",
			"device index %d is invalid, use %d for the default device", o.DeviceIndex, DefaultDeviceIndex)
	case o.SilenceThreshold < 0 || o.SilenceWindow < 0:
		return status.Newf(status.InvalidArgument, component, "open",
			"silence threshold and window must not be negative")
	case o.FrameLength > ring.MaxSamples/o.BufferedFrames:
		return status.Newf(status.OutOfMemory, component, "open",
			"ring of %d frames of %d samples exceeds %d samples", o.BufferedFrames, o.FrameLength, ring.MaxSamples)
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.SilenceWindow == 0 {
		o.SilenceWindow = 2 * sampleRate
	}
	if o.DiagnosticsInterval <= 0 {
		o.DiagnosticsInterval = defaultDiagnosticsInterval
	}
	if o.DiagnosticsBurst <= 0 {
		o.DiagnosticsBurst = defaultDiagnosticsBurst
	}
}

// Stats is a snapshot of session counters.
type Stats struct {
	Captured      uint64 // frames delivered by the backend
	Read          uint64 // frames handed to the consumer
	Dropped       uint64 // frames overwritten before being read
	SilenceEvents uint64
	Buffered      int // frames waiting in the ring
}
