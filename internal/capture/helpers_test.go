package capture

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiocapture/internal/backend"
	"github.com/tphakala/audiocapture/internal/backend/virtual"
	"github.com/tphakala/audiocapture/internal/lifecycle"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/ring"
	"github.com/tphakala/audiocapture/internal/testutil"
)

// newVirtualLoader returns a loader that always hands out vb. Releasing the
// last reference closes vb for good, so tests that reload the backend use
// newFactoryLoader.
func newVirtualLoader(vb *virtual.Backend) *backend.Loader {
	return backend.NewLoader(virtual.Name, func() (backend.Backend, error) {
		return vb, nil
	}, logger.NewNopLogger())
}

// newFactoryLoader returns a loader that creates a fresh virtual backend on
// every load.
func newFactoryLoader(vopts ...virtual.Option) *backend.Loader {
	return backend.NewLoader(virtual.Name, virtual.Factory(vopts...), logger.NewNopLogger())
}

func testOptions(frameLength, buffered int) Options {
	opts := DefaultOptions(frameLength)
	opts.BufferedFrames = buffered
	opts.Logger = logger.NewNopLogger()
	return opts
}

// openSession opens a session on a fresh virtual backend and deletes it when
// the test ends.
func openSession(t *testing.T, opts Options, vopts ...virtual.Option) (*Session, *virtual.Backend) {
	t.Helper()

	vb := virtual.New(vopts...)
	s, err := Open(t.Context(), newVirtualLoader(vb), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		if s.State() != lifecycle.Deleted {
			_ = s.Delete()
		}
	})
	return s, vb
}

func startedSession(t *testing.T, opts Options, vopts ...virtual.Option) (*Session, *virtual.Stream) {
	t.Helper()

	s, vb := openSession(t, opts, vopts...)
	require.NoError(t, s.Start())
	stream := vb.LastStream()
	require.NotNil(t, stream)
	return s, stream
}

// constFrame returns a frame with every sample set to v.
func constFrame(n int, v int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func emitSeq(t *testing.T, stream *virtual.Stream, frameLength int, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		require.NoError(t, stream.Emit(constFrame(frameLength, int16(i))))
	}
}

func readWithTimeout(t *testing.T, s *Session) (ring.Frame, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), testutil.DefaultTestTimeout)
	defer cancel()
	return s.Read(ctx)
}

// syncBuffer is a bytes.Buffer safe for the diagnostics goroutine to write
// while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// metricValue returns the value of the series of name whose labels include
// every pair in labels.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok {
					if v != lp.GetValue() {
						continue metrics
					}
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}
