package capture

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/catalog"
	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/lifecycle"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/observability/metrics"
	"github.com/tphakala/audiocapture/internal/ring"
	"github.com/tphakala/audiocapture/internal/status"
)

// Session is one recorder bound to one capture device. All methods are safe
// for concurrent use, but only one Read may be in progress at a time.
type Session struct {
	id      string
	opts    Options
	loader  *backend.Loader
	log     logger.Logger
	machine *lifecycle.Machine

	// Set by Open and immutable until Delete. Readers take them under the
	// machine lock.
	stream  backend.Stream
	ring    *ring.FrameRing
	device  string
	scratch ring.Frame
	metrics *metrics.SessionMetrics

	// Capture thread state.
	detector silenceDetector
	active   atomic.Bool
	inflight atomic.Int32
	silences atomic.Uint64

	debug   atomic.Bool
	reading atomic.Bool

	faultMu sync.Mutex
	fault   error

	events     chan event
	eventsLost atomic.Uint64
	diagDone   chan struct{}
	diagWG     sync.WaitGroup
}

// NewSession returns an unopened session that will capture through loader.
func NewSession(loader *backend.Loader, opts Options) *Session {
	opts.applyDefaults()
	var log logger.Logger
	if opts.Logger != nil {
		log = opts.Logger.Module("capture")
	} else {
		log = logger.Global().Module("capture")
	}

	id := uuid.NewString()
	s := &Session{
		id:     id,
		opts:   opts,
		loader: loader,
		log: log.With(
			logger.String("session_id", id),
			logger.String("backend", loader.Name()),
		),
		events: make(chan event, eventQueueSize),
	}
	s.debug.Store(opts.Debug)
	s.machine = lifecycle.New(s.observe)
	return s
}

// Open creates a session and opens its device in one step.
func Open(ctx context.Context, loader *backend.Loader, opts Options) (*Session, error) {
	s := NewSession(loader, opts)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session identifier used in logs and metric labels.
func (s *Session) ID() string { return s.id }

// FrameLength returns the number of samples per frame.
func (s *Session) FrameLength() int { return s.opts.FrameLength }

// SampleRate returns the capture rate in Hz.
func (s *Session) SampleRate() int { return sampleRate }

// State returns the lifecycle state.
func (s *Session) State() lifecycle.State { return s.machine.State() }

// Open validates the options, resolves the device and opens it without
// starting capture. A second Open fails with DeviceAlreadyInitialized.
func (s *Session) Open(ctx context.Context) error {
	err := s.machine.Fire(lifecycle.Open, func() error {
		return s.open(ctx)
	})
	s.record("open", err)
	return err
}

func (s *Session) open(ctx context.Context) error {
	if err := s.opts.validate(); err != nil {
		return err
	}

	b, err := s.loader.Acquire()
	if err != nil {
		return status.Wrap(status.BackendError, component, "open", err)
	}
	opened := false
	defer func() {
		if opened {
			return
		}
		if err := s.loader.Release(); err != nil {
			s.log.Warn("failed to release backend after open error", logger.Error(err))
		}
	}()

	device, err := catalog.New(b).Resolve(ctx, s.opts.DeviceIndex)
	if err != nil {
		return err
	}

	r, err := ring.New(s.opts.FrameLength, s.opts.BufferedFrames)
	if err != nil {
		if errors.Is(err, ring.ErrTooLarge) {
			return status.New(status.OutOfMemory, component, "open", err)
		}
		return status.New(status.InvalidArgument, component, "open", err)
	}
	s.ring = r
	s.detector = newSilenceDetector(s.opts.SilenceThreshold, s.opts.SilenceWindow)
	if s.opts.OnFrame != nil {
		s.scratch = make(ring.Frame, s.opts.FrameLength)
	}

	stream, err := b.OpenStream(backend.StreamConfig{
		Device:      device.Config(),
		FrameLength: s.opts.FrameLength,
		SampleRate:  sampleRate,
	}, s.onData, s.onStop)
	if err != nil {
		r.Close()
		s.ring = nil
		s.scratch = nil
		return status.Wrap(status.BackendError, component, "open", err)
	}

	s.stream = stream
	s.device = stream.DeviceName()
	s.metrics = s.opts.Metrics.ForSession(s.id)

	done := make(chan struct{})
	s.diagDone = done
	s.diagWG.Go(func() { s.runDiagnostics(done) })

	opened = true
	s.log.Info("capture device opened",
		logger.String("device", s.device),
		logger.Int("device_index", s.opts.DeviceIndex),
		logger.Int("frame_length", s.opts.FrameLength),
		logger.Int("buffered_frames", s.opts.BufferedFrames),
		logger.Bool("push_mode", s.opts.OnFrame != nil))
	return nil
}

// Start begins capture. Frames buffered before a previous Stop stay
// readable; silence detection starts over.
func (s *Session) Start() error {
	err := s.machine.Fire(lifecycle.Start, func() error {
		if fault := s.faultErr(); fault != nil {
			return fault
		}
		s.detector.reset()
		s.active.Store(true)
		if err := s.stream.Start(); err != nil {
			s.active.Store(false)
			return status.New(status.BackendError, component, "start", err)
		}
		s.ring.Unseal()
		if s.faultErr() != nil {
			s.ring.Seal()
		}
		return nil
	})
	s.record("start", err)
	return err
}

// Stop pauses capture. A blocked Read drains the buffered frames and then
// fails with InvalidState.
func (s *Session) Stop() error {
	err := s.machine.Fire(lifecycle.Stop, func() error {
		s.active.Store(false)
		if err := s.stream.Stop(); err != nil {
			s.active.Store(true)
			return status.New(status.BackendError, component, "stop", err)
		}
		s.waitIdle()
		s.ring.Seal()
		return nil
	})
	s.record("stop", err)
	return err
}

// Delete closes the device, frees the ring and releases the backend. It is
// terminal; a second Delete fails with InvalidState. A teardown failure is
// returned after the session has been deleted.
func (s *Session) Delete() error {
	var teardownErr error
	err := s.machine.Fire(lifecycle.Delete, func() error {
		teardownErr = s.teardown()
		return nil
	})
	if err == nil {
		err = teardownErr
	}
	s.record("delete", err)
	return err
}

func (s *Session) teardown() error {
	if s.stream == nil {
		return nil
	}

	var errs []error
	s.active.Store(false)
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	s.waitIdle()
	s.ring.Close()

	close(s.diagDone)
	s.diagWG.Wait()

	if err := s.loader.Release(); err != nil {
		errs = append(errs, err)
	}
	s.metrics.Forget()
	s.log.Info("capture device closed", logger.Uint64("dropped", s.ring.Dropped()))

	if len(errs) > 0 {
		return status.New(status.BackendError, component, "delete", errors.Join(errs...))
	}
	return nil
}

// Read blocks until a frame is available and returns a new slice holding it.
func (s *Session) Read(ctx context.Context) (ring.Frame, error) {
	frame := make(ring.Frame, max(s.opts.FrameLength, 0))
	if err := s.ReadInto(ctx, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ReadInto blocks until a frame is available and copies it into dst, which
// must hold FrameLength samples.
//
// Read fails with DeviceNotInitialized before the first Start, with
// InvalidState after Delete, in push mode, while another Read is in progress
// or once a stopped session is drained, with BackendError once a faulted
// session is drained, and with IoError when ctx ends.
func (s *Session) ReadInto(ctx context.Context, dst []int16) error {
	err := s.readInto(ctx, dst)
	if err != nil {
		s.record("read", err)
	}
	return err
}

func (s *Session) readInto(ctx context.Context, dst []int16) error {
	var r *ring.FrameRing
	err := s.machine.View(func(st lifecycle.State, everStarted bool) error {
		switch {
		case st == lifecycle.Deleted:
			return status.Newf(status.InvalidState, component, "read", "session deleted")
		case !everStarted:
			return status.Newf(status.DeviceNotInitialized, component, "read", "read before first start")
		case s.opts.OnFrame != nil:
			return status.Newf(status.InvalidState, component, "read", "frames are delivered to the frame callback")
		}
		r = s.ring
		return nil
	})
	if err != nil {
		return err
	}
	if len(dst) != s.opts.FrameLength {
		return status.Newf(status.InvalidArgument, component, "read",
			"destination holds %d samples, want %d", len(dst), s.opts.FrameLength)
	}
	if !s.reading.CompareAndSwap(false, true) {
		return status.Newf(status.InvalidState, component, "read", "another read is in progress")
	}
	defer s.reading.Store(false)

	started := time.Now()
	err = r.Pop(ctx, dst)
	switch {
	case err == nil:
		s.metrics.FrameRead()
		s.metrics.SetRingFill(r.Len(), r.Cap())
		s.opts.Metrics.ObserveReadWait(time.Since(started).Seconds())
		return nil
	case errors.Is(err, ring.ErrSealed):
		if fault := s.faultErr(); fault != nil {
			return fault
		}
		return status.Newf(status.InvalidState, component, "read", "session stopped and no frames are buffered")
	case errors.Is(err, ring.ErrClosed):
		return status.Newf(status.InvalidState, component, "read", "session deleted")
	case ctx.Err() != nil:
		return status.New(status.IoError, component, "read", err)
	default:
		return status.New(status.RuntimeError, component, "read", err)
	}
}

// SelectedDevice returns the name of the opened device. For the default
// index it is the device the backend chose.
func (s *Session) SelectedDevice() (string, error) {
	var name string
	err := s.machine.View(func(st lifecycle.State, _ bool) error {
		switch st {
		case lifecycle.Deleted:
			return status.Newf(status.InvalidState, component, "selected_device", "session deleted")
		case lifecycle.Uninitialized:
			return status.Newf(status.DeviceNotInitialized, component, "selected_device", "session not opened")
		}
		name = s.device
		return nil
	})
	return name, err
}

// IsRecording reports whether the session is recording and its device has
// not failed.
func (s *Session) IsRecording() bool {
	return s.machine.State() == lifecycle.Recording && s.faultErr() == nil
}

// SetDebugLogging toggles verbose logging. While enabled, overflow and
// silence warnings are logged regardless of Options.
func (s *Session) SetDebugLogging(enabled bool) {
	s.debug.Store(enabled)
	s.log.Info("debug logging changed", logger.Bool("enabled", enabled))
}

// Stats returns a snapshot of the session counters. An unopened or deleted
// session reports the silence count only.
func (s *Session) Stats() Stats {
	st := Stats{SilenceEvents: s.silences.Load()}
	_ = s.machine.View(func(state lifecycle.State, _ bool) error {
		if s.ring == nil {
			return nil
		}
		st.Captured = s.ring.Pushed()
		st.Read = s.ring.Popped()
		st.Dropped = s.ring.Dropped()
		if state != lifecycle.Deleted {
			st.Buffered = s.ring.Len()
		}
		return nil
	})
	return st
}

// Dropped returns the number of frames lost to overflow.
func (s *Session) Dropped() uint64 {
	return s.Stats().Dropped
}

func (s *Session) faultErr() error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.fault
}

// waitIdle returns once no data callback is executing. Callers clear active
// and stop the stream first, so no new callback can enter the ring.
func (s *Session) waitIdle() {
	for s.inflight.Load() != 0 {
		runtime.Gosched()
	}
}

func (s *Session) observe(ev lifecycle.Event, from, to lifecycle.State) {
	if to != lifecycle.Deleted {
		s.metrics.SetRecording(to == lifecycle.Recording)
	}
	level := logger.LogLevelDebug
	if s.debug.Load() {
		level = logger.LogLevelInfo
	}
	s.log.Log(level, "state transition",
		logger.String("event", ev.String()),
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

func (s *Session) record(op string, err error) {
	s.opts.Metrics.RecordOperation(op, status.Of(err).String())
}
