package capture

import (
	"github.com/tphakala/audiocapture/internal/status"
)

// onData runs on the backend's capture thread for every frame. It must not
// block, allocate or log: warnings go through the event queue.
func (s *Session) onData(samples []int16) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	if !s.active.Load() {
		return
	}

	overflowed, err := s.ring.Push(samples)
	if err != nil {
		return
	}
	s.metrics.FrameCaptured(overflowed)
	if overflowed && (s.opts.LogOverflow || s.debug.Load()) {
		s.signal(event{kind: eventOverflow})
	}

	if s.detector.observe(samples) {
		s.silences.Add(1)
		s.metrics.Silence()
		if s.opts.LogSilence || s.debug.Load() {
			s.signal(event{kind: eventSilence})
		}
	}

	if s.opts.OnFrame != nil {
		s.deliver()
	}
	s.metrics.SetRingFill(s.ring.Len(), s.ring.Cap())
}

// deliver drains the ring into the frame callback inline.
func (s *Session) deliver() {
	for {
		ok, err := s.ring.TryPop(s.scratch)
		if err != nil || !ok {
			return
		}
		s.metrics.FrameRead()
		s.opts.OnFrame(s.scratch)
	}
}

// onStop runs when the backend stops capturing. A nil err is a requested
// stop. Otherwise the device failed: the fault is kept until Delete and the
// reader is woken so it can drain and observe it.
func (s *Session) onStop(err error) {
	if err == nil {
		return
	}

	fault := status.New(status.BackendError, component, "capture", err)
	s.faultMu.Lock()
	if s.fault == nil {
		s.fault = fault
	}
	s.faultMu.Unlock()

	s.active.Store(false)
	s.opts.Metrics.RecordBackendFault(s.loader.Name())
	s.signal(event{kind: eventFault, err: err})
	s.ring.Seal()
}
