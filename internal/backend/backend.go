// Package backend defines the contract between the recorder and an OS audio
// subsystem, plus the shared, reference-counted Loader that owns a backend
// instance.
package backend

import (
	"context"

	"github.com/tphakala/audiocapture/internal/errors"
)

// DeviceInfo describes one capture device as reported by a backend.
type DeviceInfo struct {
	Name      string
	ID        string
	IsDefault bool
}

// StreamConfig is the capture format requested from a backend. A zero
// Device selects the system default input.
type StreamConfig struct {
	Device      DeviceInfo
	FrameLength int
	SampleRate  int
}

// DataFunc receives exactly FrameLength samples on the backend's capture
// thread. The slice is only valid for the duration of the call.
type DataFunc func(samples []int16)

// StopFunc is called on the backend's thread when capture stops. err is nil
// for a requested stop and non-nil when the device failed or disappeared.
type StopFunc func(err error)

// Backend is an OS audio subsystem capable of enumerating and opening
// capture devices.
type Backend interface {
	Name() string
	// Devices queries the subsystem for capture devices. No caching.
	Devices(ctx context.Context) ([]DeviceInfo, error)
	OpenStream(cfg StreamConfig, onData DataFunc, onStop StopFunc) (Stream, error)
	Close() error
}

// Stream is one opened capture device. After Stop or Close returns, onData
// is not invoked again. Neither may be called from inside onData.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	DeviceName() string
	SampleRate() int
}

// ErrDeviceLost is reported through StopFunc when a device stops without a
// Stop request.
var ErrDeviceLost = errors.NewStd("audio device stopped unexpectedly")

// DefaultDevice returns the device flagged as default, or the first device.
func DefaultDevice(devices []DeviceInfo) (DeviceInfo, bool) {
	for _, d := range devices {
		if d.IsDefault {
			return d, true
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return DeviceInfo{}, false
}
