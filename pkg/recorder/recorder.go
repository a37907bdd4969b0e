// Package recorder is the public API of the audio capture engine.
//
// A Recorder captures 16 kHz mono signed 16-bit audio from one input device
// and hands it out in fixed-length frames, either by blocking Read calls or
// by invoking a callback for every frame:
//
//	rt, err := recorder.Setup("")
//	...
//	rec, err := rt.New(ctx, recorder.Config{FrameLength: 512, DeviceIndex: -1})
//	...
//	defer rec.Delete()
//	if err := rec.Start(); err != nil { ... }
//	frame, err := rec.Read(ctx)
package recorder

import (
	"context"

	"github.com/tphakala/audiocapture/internal/capture"
	"github.com/tphakala/audiocapture/internal/status"
)

// DefaultDeviceIndex selects the system default input device.
const DefaultDeviceIndex = capture.DefaultDeviceIndex

// Status is the outcome kind carried by every error of this package.
type Status = status.Status

// Outcome kinds.
const (
	Success                  = status.Success
	OutOfMemory              = status.OutOfMemory
	InvalidArgument          = status.InvalidArgument
	InvalidState             = status.InvalidState
	BackendError             = status.BackendError
	DeviceAlreadyInitialized = status.DeviceAlreadyInitialized
	DeviceNotInitialized     = status.DeviceNotInitialized
	IoError                  = status.IoError
	RuntimeError             = status.RuntimeError
)

// Sentinels for errors.Is, one per outcome kind.
var (
	ErrOutOfMemory              = status.ErrOutOfMemory
	ErrInvalidArgument          = status.ErrInvalidArgument
	ErrInvalidState             = status.ErrInvalidState
	ErrBackend                  = status.ErrBackend
	ErrDeviceAlreadyInitialized = status.ErrDeviceAlreadyInitialized
	ErrDeviceNotInitialized     = status.ErrDeviceNotInitialized
	ErrIO                       = status.ErrIO
	ErrRuntime                  = status.ErrRuntime
)

// StatusOf returns the outcome kind of err. nil is Success.
func StatusOf(err error) Status { return status.Of(err) }

// Version returns the engine version.
func Version() string { return capture.Version() }

// SampleRate returns the capture rate in Hz.
func SampleRate() int { return capture.SampleRate() }

// Config selects a device and the frame geometry. A zero BufferedFrames
// and nil LogOverflow or LogSilence take the configured defaults.
type Config struct {
	FrameLength    int
	DeviceIndex    int
	BufferedFrames int
	LogOverflow    *bool
	LogSilence     *bool

	// OnFrame switches the recorder to push mode. It runs on the capture
	// thread, must not block, and must copy the frame to keep it.
	OnFrame func(frame []int16)
}

// Stats is a snapshot of recorder counters.
type Stats = capture.Stats

// Recorder captures from one device. It is safe for concurrent use by one
// reader and any number of controlling goroutines.
type Recorder struct {
	session *capture.Session
}

// Start begins capture.
func (r *Recorder) Start() error { return r.session.Start() }

// Stop pauses capture. Buffered frames remain readable.
func (r *Recorder) Stop() error { return r.session.Stop() }

// Read blocks for the next frame. Cancelling ctx returns an IoError.
func (r *Recorder) Read(ctx context.Context) ([]int16, error) {
	return r.session.Read(ctx)
}

// ReadInto copies the next frame into dst.
func (r *Recorder) ReadInto(ctx context.Context, dst []int16) error {
	return r.session.ReadInto(ctx, dst)
}

// Delete releases the device. The recorder cannot be used afterwards.
func (r *Recorder) Delete() error { return r.session.Delete() }

// SelectedDevice returns the name of the capture device in use.
func (r *Recorder) SelectedDevice() (string, error) { return r.session.SelectedDevice() }

// IsRecording reports whether frames are being captured.
func (r *Recorder) IsRecording() bool { return r.session.IsRecording() }

// SetDebugLogging toggles verbose logging for this recorder.
func (r *Recorder) SetDebugLogging(enabled bool) { r.session.SetDebugLogging(enabled) }

// FrameLength returns the number of samples per frame.
func (r *Recorder) FrameLength() int { return r.session.FrameLength() }

// SampleRate returns the capture rate in Hz.
func (r *Recorder) SampleRate() int { return r.session.SampleRate() }

// Stats returns the recorder counters.
func (r *Recorder) Stats() Stats { return r.session.Stats() }
