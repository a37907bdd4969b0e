// Package malgo implements the audio backend on miniaudio through
// github.com/gen2brain/malgo. It selects ALSA, WASAPI or CoreAudio by
// platform and captures S16 mono at the requested sample rate; miniaudio
// converts from the device's native format.
package malgo

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
)

// Name is the registry name of this backend.
const Name = "malgo"

// nullDeviceMarker identifies miniaudio's discard device, which is never
// offered as an input.
const nullDeviceMarker = "Discard all samples"

func platformBackend() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("os", runtime.GOOS).
			Build()
	}
}

// Backend is a miniaudio context.
type Backend struct {
	log logger.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// New initializes a miniaudio context for the current platform.
func New(log logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Global().Module("backend").Module(Name)
	}

	mb, err := platformBackend()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{mb}, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}

	log.Debug("audio context initialized", logger.String("os", runtime.GOOS))
	return &Backend{log: log, ctx: ctx}, nil
}

// Factory returns a backend.Factory for the registry.
func Factory(log logger.Logger) backend.Factory {
	return func() (backend.Backend, error) {
		return New(log)
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// Devices implements backend.Backend.
func (b *Backend) Devices(ctx context.Context) ([]backend.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := b.captureDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]backend.DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, toDeviceInfo(&infos[i]))
	}
	return devices, nil
}

func (b *Backend) captureDevices() ([]malgo.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.Newf("audio context closed").
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Build()
	}

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("operation", "enumerate_devices").
			Build()
	}

	out := infos[:0]
	for i := range infos {
		if strings.Contains(infos[i].Name(), nullDeviceMarker) {
			continue
		}
		out = append(out, infos[i])
	}
	return out, nil
}

func toDeviceInfo(info *malgo.DeviceInfo) backend.DeviceInfo {
	return backend.DeviceInfo{
		Name:      strings.TrimRight(info.Name(), "\x00"),
		ID:        info.ID.String(),
		IsDefault: info.IsDefault == 1,
	}
}

// OpenStream implements backend.Backend.
func (b *Backend) OpenStream(cfg backend.StreamConfig, onData backend.DataFunc, onStop backend.StopFunc) (backend.Stream, error) {
	infos, err := b.captureDevices()
	if err != nil {
		return nil, err
	}

	selected, err := selectDevice(infos, cfg.Device.ID)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		log:    b.log,
		device: toDeviceInfo(selected),
		onStop: onStop,
	}
	s.assembler, err = backend.NewFrameAssembler(cfg.FrameLength, onData)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = selected.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onDeviceStop,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.Newf("audio context closed").
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Build()
	}
	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	b.mu.Unlock()
	if err != nil {
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("device", s.device.Name).
			Build()
	}

	s.dev = device
	s.sampleRate = int(device.SampleRate())
	b.log.Debug("capture device opened",
		logger.String("device", s.device.Name),
		logger.Int("sample_rate", s.sampleRate),
		logger.Int("frame_length", cfg.FrameLength))
	return s, nil
}

// selectDevice returns the device with id, or the default device for an
// empty id.
func selectDevice(infos []malgo.DeviceInfo, id string) (*malgo.DeviceInfo, error) {
	if id == "" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				return &infos[i], nil
			}
		}
		if len(infos) > 0 {
			return &infos[0], nil
		}
		return nil, errors.Newf("no capture devices available").
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Build()
	}
	for i := range infos {
		if infos[i].ID.String() == id {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("capture device not found").
		Component("malgo").
		Category(errors.CategoryAudioDevice).
		Context("device_id", id).
		Build()
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	err := b.ctx.Uninit()
	b.ctx.Free()
	if err != nil {
		return errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

// Stream is a miniaudio capture device.
type Stream struct {
	log        logger.Logger
	dev        *malgo.Device
	device     backend.DeviceInfo
	sampleRate int
	assembler  *backend.FrameAssembler
	onStop     backend.StopFunc

	mu       sync.Mutex
	closed   bool
	stopping atomic.Bool
}

// onData runs on miniaudio's capture thread.
func (s *Stream) onData(_, input []byte, _ uint32) {
	s.assembler.Write(input)
}

// onDeviceStop runs on a miniaudio thread for both requested stops and
// device failures.
func (s *Stream) onDeviceStop() {
	if s.onStop == nil {
		return
	}
	if s.stopping.Load() {
		s.onStop(nil)
		return
	}
	s.onStop(backend.ErrDeviceLost)
}

// Start implements backend.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Newf("capture device closed").
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Build()
	}
	if s.dev.IsStarted() {
		return nil
	}
	s.stopping.Store(false)
	s.assembler.Reset()
	if err := s.dev.Start(); err != nil {
		return errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_device").
			Context("device", s.device.Name).
			Build()
	}
	return nil
}

// Stop implements backend.Stream. miniaudio waits for the data callback to
// return before ma_device_stop completes.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.dev.IsStarted() {
		return nil
	}
	s.stopping.Store(true)
	if err := s.dev.Stop(); err != nil {
		return errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_device").
			Context("device", s.device.Name).
			Build()
	}
	return nil
}

// Close implements backend.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.stopping.Store(true)
	s.dev.Uninit()
	s.log.Debug("capture device closed", logger.String("device", s.device.Name))
	return nil
}

// DeviceName implements backend.Stream.
func (s *Stream) DeviceName() string { return s.device.Name }

// SampleRate implements backend.Stream.
func (s *Stream) SampleRate() int { return s.sampleRate }
