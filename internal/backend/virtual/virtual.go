// Package virtual provides an in-memory audio backend. Tests drive it
// frame by frame with Emit; hosts without audio hardware can enable a tone
// generator that produces frames in real time.
package virtual

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/errors"
)

// Name is the registry name of this backend.
const Name = "virtual"

// DefaultDeviceName is the single device reported when none are configured.
const DefaultDeviceName = "Virtual Microphone"

var (
	// ErrNotStarted is returned by Emit when the stream is not capturing.
	ErrNotStarted = errors.NewStd("virtual stream is not started")
	// ErrClosed is returned for operations on a closed backend or stream.
	ErrClosed = errors.NewStd("virtual backend closed")
	// ErrUnknownDevice is returned by OpenStream for a device ID not present.
	ErrUnknownDevice = errors.NewStd("virtual device not found")
)

// Option configures a Backend.
type Option func(*Backend)

// WithDevices sets the device list. The first device is the default.
// Passing no names yields a host with no input devices.
func WithDevices(names ...string) Option {
	return func(b *Backend) {
		b.devices = makeDevices(names)
	}
}

// WithDevicesError makes Devices fail with err.
func WithDevicesError(err error) Option {
	return func(b *Backend) { b.devicesErr = err }
}

// WithOpenError makes OpenStream fail with err.
func WithOpenError(err error) Option {
	return func(b *Backend) { b.openErr = err }
}

// WithTone makes started streams generate a sine tone in real time.
func WithTone(frequency float64, amplitude int16) Option {
	return func(b *Backend) {
		b.tone = &tone{frequency: frequency, amplitude: amplitude}
	}
}

type tone struct {
	frequency float64
	amplitude int16
}

func makeDevices(names []string) []backend.DeviceInfo {
	devices := make([]backend.DeviceInfo, len(names))
	for i, name := range names {
		devices[i] = backend.DeviceInfo{
			Name:      name,
			ID:        fmt.Sprintf("virtual:%d", i),
			IsDefault: i == 0,
		}
	}
	return devices
}

// Backend is an in-memory backend.Backend.
type Backend struct {
	mu         sync.Mutex
	devices    []backend.DeviceInfo
	devicesErr error
	openErr    error
	tone       *tone
	streams    []*Stream
	closed     bool
}

// New returns a virtual backend with one default device unless options say
// otherwise.
func New(opts ...Option) *Backend {
	b := &Backend{devices: makeDevices([]string{DefaultDeviceName})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Factory returns a backend.Factory creating virtual backends with opts.
func Factory(opts ...Option) backend.Factory {
	return func() (backend.Backend, error) {
		return New(opts...), nil
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// SetDevices replaces the device list, simulating hot-plug.
func (b *Backend) SetDevices(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = makeDevices(names)
}

// FailDevices makes subsequent Devices calls fail with err; nil clears it.
func (b *Backend) FailDevices(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devicesErr = err
}

// FailOpen makes subsequent OpenStream calls fail with err; nil clears it.
func (b *Backend) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

// Devices implements backend.Backend.
func (b *Backend) Devices(ctx context.Context) ([]backend.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.devicesErr != nil {
		return nil, b.devicesErr
	}
	return slices.Clone(b.devices), nil
}

// OpenStream implements backend.Backend.
func (b *Backend) OpenStream(cfg backend.StreamConfig, onData backend.DataFunc, onStop backend.StopFunc) (backend.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.openErr != nil {
		return nil, b.openErr
	}

	device := cfg.Device
	if device.ID == "" {
		d, ok := backend.DefaultDevice(b.devices)
		if !ok {
			return nil, ErrUnknownDevice
		}
		device = d
	} else if !slices.ContainsFunc(b.devices, func(d backend.DeviceInfo) bool { return d.ID == device.ID }) {
		return nil, ErrUnknownDevice
	}

	s := &Stream{
		backend: b,
		cfg:     cfg,
		device:  device,
		onData:  onData,
		onStop:  onStop,
		tone:    b.tone,
	}
	b.streams = append(b.streams, s)
	return s, nil
}

// Streams returns every stream opened so far, oldest first.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.streams)
}

// LastStream returns the most recently opened stream, or nil.
func (b *Backend) LastStream() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	streams := b.streams
	b.closed = true
	b.streams = nil
	b.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Stream is a virtual capture stream.
type Stream struct {
	backend *Backend
	cfg     backend.StreamConfig
	device  backend.DeviceInfo
	onData  backend.DataFunc
	onStop  backend.StopFunc
	tone    *tone

	// cbMu is held for the duration of every onData call so Stop can wait
	// for an in-flight callback.
	cbMu    sync.Mutex
	mu      sync.Mutex
	started bool
	closed  bool
	starts  atomic.Int32

	genStop chan struct{}
	genDone chan struct{}
}

// Start implements backend.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true
	s.starts.Add(1)
	if s.tone != nil {
		s.genStop = make(chan struct{})
		s.genDone = make(chan struct{})
		go s.generate(s.genStop, s.genDone)
	}
	return nil
}

// Stop implements backend.Stream. It waits for an in-flight Emit to return.
func (s *Stream) Stop() error {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	genStop, genDone := s.genStop, s.genDone
	s.genStop, s.genDone = nil, nil
	s.mu.Unlock()

	if genStop != nil {
		close(genStop)
		<-genDone
	}
	s.cbMu.Lock()
	s.cbMu.Unlock() //nolint:staticcheck // barrier for in-flight callbacks

	if wasStarted && s.onStop != nil {
		s.onStop(nil)
	}
	return nil
}

// Close implements backend.Stream.
func (s *Stream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// DeviceName implements backend.Stream.
func (s *Stream) DeviceName() string { return s.device.Name }

// SampleRate implements backend.Stream.
func (s *Stream) SampleRate() int { return s.cfg.SampleRate }

// Config returns the configuration the stream was opened with.
func (s *Stream) Config() backend.StreamConfig { return s.cfg }

// Started reports whether the stream is capturing.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Starts returns how many times the stream has been started.
func (s *Stream) Starts() int { return int(s.starts.Load()) }

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit delivers one frame to the data callback synchronously, as the OS
// capture thread would. samples must hold FrameLength values.
func (s *Stream) Emit(samples []int16) error {
	if len(samples) != s.cfg.FrameLength {
		return errors.Newf("virtual stream: got %d samples, want %d", len(samples), s.cfg.FrameLength).
			Component("virtual").
			Category(errors.CategoryValidation).
			Build()
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	s.onData(samples)
	return nil
}

// Disconnect simulates the device disappearing mid-capture. Capture stops
// and the stop callback receives err, or backend.ErrDeviceLost if err is nil.
func (s *Stream) Disconnect(err error) {
	if err == nil {
		err = backend.ErrDeviceLost
	}

	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	genStop, genDone := s.genStop, s.genDone
	s.genStop, s.genDone = nil, nil
	s.mu.Unlock()

	if genStop != nil {
		close(genStop)
		<-genDone
	}
	s.cbMu.Lock()
	s.cbMu.Unlock() //nolint:staticcheck // barrier for in-flight callbacks

	if wasStarted && s.onStop != nil {
		s.onStop(err)
	}
}

func (s *Stream) generate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	rate := s.cfg.SampleRate
	if rate <= 0 || s.cfg.FrameLength <= 0 {
		return
	}
	period := time.Duration(s.cfg.FrameLength) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	frame := make([]int16, s.cfg.FrameLength)
	step := 2 * math.Pi * s.tone.frequency / float64(rate)
	var phase float64

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for i := range frame {
				frame[i] = int16(float64(s.tone.amplitude) * math.Sin(phase))
				phase += step
			}
			phase = math.Mod(phase, 2*math.Pi)

			s.cbMu.Lock()
			s.onData(frame)
			s.cbMu.Unlock()
		}
	}
}
