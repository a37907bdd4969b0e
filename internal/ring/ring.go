// Package ring implements FrameRing, a bounded single-producer single-consumer
// queue of fixed-length PCM frames.
//
// Push never blocks and never allocates. When the ring is full the oldest
// unread frame is overwritten and counted as dropped. Pop blocks until a
// frame is available, the ring is sealed and drained, the ring is closed, or
// the context is done.
package ring

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tphakala/audiocapture/internal/errors"
)

// MaxSamples bounds the total sample storage of one ring.
const MaxSamples = 1 << 27

var (
	// ErrInvalidConfig is returned by New for non-positive dimensions.
	ErrInvalidConfig = errors.NewStd("ring: frame length and capacity must be positive")
	// ErrTooLarge is returned by New when the storage would exceed MaxSamples.
	ErrTooLarge = errors.NewStd("ring: requested storage exceeds limit")
	// ErrFrameLength is returned when a frame or destination has the wrong length.
	ErrFrameLength = errors.NewStd("ring: frame length mismatch")
	// ErrSealed is returned by Pop once the ring is sealed and drained.
	ErrSealed = errors.NewStd("ring: sealed and empty")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.NewStd("ring: closed")
)

// Frame is one block of frame-length samples.
type Frame []int16

// Clone returns a copy of f.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// FrameRing stores up to Cap frames of FrameLength samples each.
type FrameRing struct {
	frameLength int
	capacity    int

	mu         sync.Mutex
	data       []int16
	head       int // slot of the oldest unread frame
	count      int // unread frames
	sealed     bool
	closed     bool
	wake       chan struct{} // closed on Seal and Close
	wakeClosed bool

	notify chan struct{} // one pending token per push burst

	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64
}

// New allocates a ring of capacity frames of frameLength samples.
func New(frameLength, capacity int) (*FrameRing, error) {
	if frameLength <= 0 || capacity <= 0 {
		return nil, errors.New(ErrInvalidConfig).
			Component("ring").
			Category(errors.CategoryValidation).
			Context("frame_length", frameLength).
			Context("capacity", capacity).
			Build()
	}
	if frameLength > MaxSamples/capacity {
		return nil, errors.New(ErrTooLarge).
			Component("ring").
			Category(errors.CategoryResource).
			Context("frame_length", frameLength).
			Context("capacity", capacity).
			Build()
	}

	return &FrameRing{
		frameLength: frameLength,
		capacity:    capacity,
		data:        make([]int16, frameLength*capacity),
		wake:        make(chan struct{}),
		notify:      make(chan struct{}, 1),
	}, nil
}

// FrameLength returns the number of samples per frame.
func (r *FrameRing) FrameLength() int { return r.frameLength }

// Cap returns the capacity in frames.
func (r *FrameRing) Cap() int { return r.capacity }

// Len returns the number of unread frames.
func (r *FrameRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Pushed returns the number of frames accepted by Push.
func (r *FrameRing) Pushed() uint64 { return r.pushed.Load() }

// Popped returns the number of frames handed to consumers.
func (r *FrameRing) Popped() uint64 { return r.popped.Load() }

// Dropped returns the number of frames overwritten before they were read.
func (r *FrameRing) Dropped() uint64 { return r.dropped.Load() }

// Push copies samples into the ring. samples must hold exactly FrameLength
// values and may be reused by the caller once Push returns. overflowed
// reports that the oldest unread frame was overwritten.
func (r *FrameRing) Push(samples []int16) (overflowed bool, err error) {
	if len(samples) != r.frameLength {
		return false, ErrFrameLength
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, ErrClosed
	}
	tail := (r.head + r.count) % r.capacity
	if r.count == r.capacity {
		r.head = (r.head + 1) % r.capacity
		overflowed = true
	} else {
		r.count++
	}
	copy(r.data[tail*r.frameLength:(tail+1)*r.frameLength], samples)
	r.mu.Unlock()

	r.pushed.Add(1)
	if overflowed {
		r.dropped.Add(1)
	}

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return overflowed, nil
}

// TryPop copies the oldest unread frame into dst without blocking. ok is
// false when the ring is empty.
func (r *FrameRing) TryPop(dst []int16) (ok bool, err error) {
	if len(dst) != r.frameLength {
		return false, ErrFrameLength
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrClosed
	}
	return r.popLocked(dst), nil
}

// Pop copies the oldest unread frame into dst, blocking until one is
// available. It returns ErrSealed once the ring is sealed and empty,
// ErrClosed after Close, and ctx.Err() when ctx is done.
func (r *FrameRing) Pop(ctx context.Context, dst []int16) error {
	if len(dst) != r.frameLength {
		return ErrFrameLength
	}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrClosed
		}
		if r.popLocked(dst) {
			r.mu.Unlock()
			return nil
		}
		if r.sealed {
			r.mu.Unlock()
			return ErrSealed
		}
		wake := r.wake
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *FrameRing) popLocked(dst []int16) bool {
	if r.count == 0 {
		return false
	}
	copy(dst, r.data[r.head*r.frameLength:(r.head+1)*r.frameLength])
	r.head = (r.head + 1) % r.capacity
	r.count--
	r.popped.Add(1)
	return true
}

// Seal marks the end of production. Blocked and future Pop calls drain the
// remaining frames and then return ErrSealed. Push is still accepted.
func (r *FrameRing) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	r.wakeAllLocked()
}

// Unseal reopens a sealed ring so Pop blocks again while it is empty.
func (r *FrameRing) Unseal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.sealed {
		return
	}
	r.sealed = false
	r.wake = make(chan struct{})
	r.wakeClosed = false
}

// Sealed reports whether the ring is sealed.
func (r *FrameRing) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Reset discards all unread frames.
func (r *FrameRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}

// Close releases the sample storage and wakes every blocked Pop. Close is
// terminal.
func (r *FrameRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.data = nil
	r.head = 0
	r.count = 0
	r.wakeAllLocked()
}

func (r *FrameRing) wakeAllLocked() {
	if !r.wakeClosed {
		close(r.wake)
		r.wakeClosed = true
	}
}
