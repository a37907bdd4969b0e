package ring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiocapture/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func frameOf(length int, v int16) []int16 {
	f := make([]int16, length)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		frameLength int
		capacity    int
		wantErr     error
		wantCat     errors.ErrorCategory
	}{
		{"zero frame length", 0, 4, ErrInvalidConfig, errors.CategoryValidation},
		{"negative frame length", -1, 4, ErrInvalidConfig, errors.CategoryValidation},
		{"zero capacity", 512, 0, ErrInvalidConfig, errors.CategoryValidation},
		{"negative capacity", 512, -3, ErrInvalidConfig, errors.CategoryValidation},
		{"too large", MaxSamples, 2, ErrTooLarge, errors.CategoryResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := New(tt.frameLength, tt.capacity)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, errors.IsCategory(err, tt.wantCat))
		})
	}
}

func TestFIFOWithinCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 2, 7, 50} {
		r, err := New(4, capacity)
		require.NoError(t, err)

		for i := range capacity {
			overflowed, err := r.Push(frameOf(4, int16(i)))
			require.NoError(t, err)
			require.False(t, overflowed)
		}
		require.Equal(t, capacity, r.Len())

		dst := make([]int16, 4)
		for i := range capacity {
			require.NoError(t, r.Pop(context.Background(), dst))
			assert.Equal(t, frameOf(4, int16(i)), dst)
		}
		assert.Equal(t, 0, r.Len())
		assert.Zero(t, r.Dropped())
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	t.Parallel()

	const capacity = 5
	r, err := New(3, capacity)
	require.NoError(t, err)

	for i := range capacity {
		_, err := r.Push(frameOf(3, int16(i)))
		require.NoError(t, err)
	}
	overflowed, err := r.Push(frameOf(3, capacity))
	require.NoError(t, err)
	assert.True(t, overflowed)
	assert.Equal(t, capacity, r.Len())
	assert.Equal(t, uint64(1), r.Dropped())

	dst := make([]int16, 3)
	for i := 1; i <= capacity; i++ {
		ok, err := r.TryPop(dst)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, frameOf(3, int16(i)), dst)
	}
	ok, err := r.TryPop(dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundTrip512PreservesSignAndOrder(t *testing.T) {
	t.Parallel()

	r, err := New(512, 2)
	require.NoError(t, err)

	in := make([]int16, 512)
	for i := range in {
		in[i] = int16((i*257)%65536 - 32768)
	}
	in[0], in[1], in[511] = -32768, 32767, -1

	_, err = r.Push(in)
	require.NoError(t, err)

	out := make([]int16, 512)
	require.NoError(t, r.Pop(context.Background(), out))
	assert.Equal(t, in, out)
}

func TestPushCopiesInput(t *testing.T) {
	t.Parallel()

	r, err := New(2, 1)
	require.NoError(t, err)

	in := []int16{1, 2}
	_, err = r.Push(in)
	require.NoError(t, err)
	in[0] = 99

	out := make([]int16, 2)
	require.NoError(t, r.Pop(context.Background(), out))
	assert.Equal(t, []int16{1, 2}, out)
}

func TestFrameLengthMismatch(t *testing.T) {
	t.Parallel()

	r, err := New(4, 2)
	require.NoError(t, err)

	_, err = r.Push(make([]int16, 3))
	assert.ErrorIs(t, err, ErrFrameLength)
	_, err = r.TryPop(make([]int16, 5))
	assert.ErrorIs(t, err, ErrFrameLength)
	assert.ErrorIs(t, r.Pop(context.Background(), nil), ErrFrameLength)
}

func TestPopWakesOnPush(t *testing.T) {
	t.Parallel()

	r, err := New(2, 2)
	require.NoError(t, err)

	done := make(chan error, 1)
	dst := make([]int16, 2)
	go func() { done <- r.Pop(context.Background(), dst) }()

	time.Sleep(10 * time.Millisecond)
	_, err = r.Push([]int16{7, -7})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, []int16{7, -7}, dst)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestSealDrainsThenFails(t *testing.T) {
	t.Parallel()

	r, err := New(1, 4)
	require.NoError(t, err)
	_, _ = r.Push([]int16{1})
	_, _ = r.Push([]int16{2})
	r.Seal()
	assert.True(t, r.Sealed())

	dst := make([]int16, 1)
	require.NoError(t, r.Pop(context.Background(), dst))
	require.NoError(t, r.Pop(context.Background(), dst))
	assert.Equal(t, int16(2), dst[0])
	assert.ErrorIs(t, r.Pop(context.Background(), dst), ErrSealed)

	r.Unseal()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Pop(ctx, dst), context.DeadlineExceeded)
}

func TestSealWakesBlockedPop(t *testing.T) {
	t.Parallel()

	r, err := New(1, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Pop(context.Background(), make([]int16, 1)) }()
	time.Sleep(10 * time.Millisecond)
	r.Seal()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSealed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Seal")
	}
}

func TestCloseWakesBlockedPopAndIsTerminal(t *testing.T) {
	t.Parallel()

	r, err := New(1, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Pop(context.Background(), make([]int16, 1)) }()
	time.Sleep(10 * time.Millisecond)
	r.Close()
	r.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Close")
	}

	_, err = r.Push([]int16{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.TryPop(make([]int16, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReset(t *testing.T) {
	t.Parallel()

	r, err := New(1, 3)
	require.NoError(t, err)
	_, _ = r.Push([]int16{1})
	_, _ = r.Push([]int16{2})
	r.Reset()
	assert.Equal(t, 0, r.Len())

	_, _ = r.Push([]int16{3})
	dst := make([]int16, 1)
	ok, err := r.TryPop(dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int16(3), dst[0])
}

// TestConcurrentProducerConsumer runs 1000 push/pop cycles with the producer
// and consumer on separate goroutines and checks every delivered frame is
// intact and in order.
func TestConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	const (
		frames      = 1000
		frameLength = 256
	)
	r, err := New(frameLength, 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Go(func() {
		buf := make([]int16, frameLength)
		for i := range frames {
			for j := range buf {
				buf[j] = int16(i)
			}
			_, _ = r.Push(buf)
		}
		r.Seal()
	})

	dst := make([]int16, frameLength)
	last := -1
	received := 0
	for {
		err := r.Pop(context.Background(), dst)
		if errors.Is(err, ErrSealed) {
			break
		}
		require.NoError(t, err)
		v := dst[0]
		for j := range dst {
			require.Equal(t, v, dst[j], "torn frame at sample %d", j)
		}
		require.Greater(t, int(v), last, "frames out of order")
		last = int(v)
		received++
	}
	wg.Wait()

	assert.Equal(t, frames-1, last)
	assert.Equal(t, uint64(frames), r.Pushed())
	assert.Equal(t, uint64(received), r.Popped())
	assert.Equal(t, uint64(frames), r.Popped()+r.Dropped())
}

func TestFrameClone(t *testing.T) {
	t.Parallel()

	f := Frame{1, 2, 3}
	c := f.Clone()
	c[0] = 9
	assert.Equal(t, int16(1), f[0])
	assert.Nil(t, Frame(nil).Clone())
}

func BenchmarkPushPop(b *testing.B) {
	r, err := New(512, 50)
	require.NoError(b, err)
	in := make([]int16, 512)
	out := make([]int16, 512)

	b.ReportAllocs()
	for b.Loop() {
		_, _ = r.Push(in)
		_, _ = r.TryPop(out)
	}
}
