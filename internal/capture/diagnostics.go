package capture

import (
	"golang.org/x/time/rate"

	"github.com/tphakala/audiocapture/internal/logger"
)

type eventKind uint8

const (
	eventOverflow eventKind = iota + 1
	eventSilence
	eventFault
)

type event struct {
	kind eventKind
	err  error
}

const (
	overflowMessage = "overflow - reader is not reading fast enough"
	silenceMessage  = "input device might be muted or volume level is set to 0"
)

// signal queues ev for the diagnostics goroutine. It never blocks; when the
// queue is full the event is dropped and reported as suppressed later.
func (s *Session) signal(ev event) {
	select {
	case s.events <- ev:
	default:
		s.eventsLost.Add(1)
	}
}

// diagnostics logs capture events off the capture thread. Overflow and
// silence warnings share one limiter.
type diagnostics struct {
	s          *Session
	limiter    *rate.Limiter
	suppressed uint64
}

// runDiagnostics handles events until done is closed, then drains the queue.
func (s *Session) runDiagnostics(done <-chan struct{}) {
	d := &diagnostics{
		s:       s,
		limiter: rate.NewLimiter(rate.Every(s.opts.DiagnosticsInterval), s.opts.DiagnosticsBurst),
	}

	for {
		select {
		case ev := <-s.events:
			d.handle(ev)
		case <-done:
			for {
				select {
				case ev := <-s.events:
					d.handle(ev)
				default:
					if n := d.takeSuppressed(); n > 0 {
						s.log.Debug("suppressed capture warnings", logger.Uint64("count", n))
					}
					return
				}
			}
		}
	}
}

func (d *diagnostics) handle(ev event) {
	log := d.s.log
	if ev.kind == eventFault {
		log.Error("capture device stopped", logger.Error(ev.err))
		return
	}
	if !d.limiter.Allow() {
		d.suppressed++
		return
	}

	var fields []logger.Field
	if n := d.takeSuppressed(); n > 0 {
		fields = append(fields, logger.Uint64("suppressed", n))
	}
	switch ev.kind {
	case eventOverflow:
		fields = append(fields, logger.Uint64("dropped", d.s.ring.Dropped()))
		log.Warn(overflowMessage, fields...)
	case eventSilence:
		log.Warn(silenceMessage, fields...)
	}
}

func (d *diagnostics) takeSuppressed() uint64 {
	n := d.suppressed + d.s.eventsLost.Swap(0)
	d.suppressed = 0
	return n
}
