package backend

import (
	"encoding/binary"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiocapture/internal/errors"
)

const bytesPerSample = 2

// FrameAssembler turns a stream of little-endian S16 mono bytes delivered in
// arbitrary chunk sizes into fixed-length frames. All storage is allocated
// up front so Write is safe on a real-time capture thread.
type FrameAssembler struct {
	frameLength int
	staging     *ringbuffer.RingBuffer
	frameBytes  []byte
	frame       []int16
	emit        DataFunc
}

// NewFrameAssembler returns an assembler calling emit once per complete frame.
func NewFrameAssembler(frameLength int, emit DataFunc) (*FrameAssembler, error) {
	if frameLength <= 0 || emit == nil {
		return nil, errors.Newf("frame assembler requires a positive frame length and a callback").
			Component("backend").
			Category(errors.CategoryValidation).
			Context("frame_length", frameLength).
			Build()
	}
	frameBytes := frameLength * bytesPerSample
	return &FrameAssembler{
		frameLength: frameLength,
		staging:     ringbuffer.New(2 * frameBytes),
		frameBytes:  make([]byte, frameBytes),
		frame:       make([]int16, frameLength),
		emit:        emit,
	}, nil
}

// Write consumes p, emitting every frame it completes. A trailing partial
// frame stays staged until the next Write.
func (a *FrameAssembler) Write(p []byte) {
	for len(p) > 0 {
		n := min(len(p), a.staging.Free())
		written, err := a.staging.Write(p[:n])
		if err != nil && written == 0 {
			return
		}
		p = p[written:]

		for a.staging.Length() >= len(a.frameBytes) {
			if _, err := a.staging.Read(a.frameBytes); err != nil {
				return
			}
			for i := range a.frame {
				a.frame[i] = int16(binary.LittleEndian.Uint16(a.frameBytes[i*bytesPerSample:]))
			}
			a.emit(a.frame)
		}
	}
}

// Pending returns the number of staged samples not yet emitted.
func (a *FrameAssembler) Pending() int {
	return a.staging.Length() / bytesPerSample
}

// Reset discards staged bytes.
func (a *FrameAssembler) Reset() {
	a.staging.Reset()
}
