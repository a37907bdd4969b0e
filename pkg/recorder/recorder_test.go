package recorder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiocapture/internal/backend/virtual"
	"github.com/tphakala/audiocapture/internal/conf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings(metricsEnabled bool) *conf.Settings {
	settings := conf.Default()
	settings.Recorder.Backend = virtual.Name
	settings.Metrics.Enabled = metricsEnabled
	settings.Logging.Console.Enabled = false
	return settings
}

func newTestRuntime(t *testing.T, settings *conf.Settings) *Runtime {
	t.Helper()

	rt, err := NewRuntime(settings)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

// virtualRuntime builds a runtime on a silent virtual backend.
func virtualRuntime(t *testing.T, metricsEnabled bool) *Runtime {
	t.Helper()
	return newTestRuntime(t, testSettings(metricsEnabled))
}

// toneRuntime builds a runtime whose virtual backend generates a 440 Hz
// tone, so recorders produce frames without hardware.
func toneRuntime(t *testing.T, metricsEnabled bool) *Runtime {
	t.Helper()

	settings := testSettings(metricsEnabled)
	settings.Recorder.VirtualTone = conf.ToneSettings{Frequency: 440, Amplitude: 8000}
	return newTestRuntime(t, settings)
}

func TestSetup_FromConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	yaml := "recorder:\n  backend: virtual\n  buffered_frames: 4\nlogging:\n  console:\n    enabled: false\n"
	require.NoError(t, afero.WriteFile(fs, "/etc/audiocapture.yaml", []byte(yaml), 0o644))

	rt, err := Setup("/etc/audiocapture.yaml", WithFs(fs))
	require.NoError(t, err)
	defer rt.Close()

	names, err := rt.AvailableDevices(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{virtual.DefaultDeviceName}, names)
}

func TestSetup_MissingFile(t *testing.T) {
	_, err := Setup("/missing.yaml", WithFs(afero.NewMemMapFs()))
	require.Error(t, err)
	assert.Equal(t, InvalidArgument, StatusOf(err))
}

func TestRuntime_UnknownBackend(t *testing.T) {
	settings := conf.Default()
	settings.Recorder.Backend = "pulse"
	settings.Logging.Console.Enabled = false
	rt, err := NewRuntime(settings)
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.New(t.Context(), Config{FrameLength: 512, DeviceIndex: DefaultDeviceIndex})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRecorder_Lifecycle(t *testing.T) {
	rt := virtualRuntime(t, false)

	_, err := rt.New(t.Context(), Config{FrameLength: 0, DeviceIndex: DefaultDeviceIndex})
	require.ErrorIs(t, err, ErrInvalidArgument)

	rec, err := rt.New(t.Context(), Config{FrameLength: 512, DeviceIndex: DefaultDeviceIndex})
	require.NoError(t, err)

	name, err := rec.SelectedDevice()
	require.NoError(t, err)
	assert.Equal(t, virtual.DefaultDeviceName, name)
	assert.Equal(t, 512, rec.FrameLength())
	assert.Equal(t, SampleRate(), rec.SampleRate())

	_, err = rec.Read(t.Context())
	require.ErrorIs(t, err, ErrDeviceNotInitialized)

	require.NoError(t, rec.Start())
	assert.True(t, rec.IsRecording())
	require.ErrorIs(t, rec.Start(), ErrInvalidState)
	require.NoError(t, rec.Stop())
	require.NoError(t, rec.Delete())
	require.ErrorIs(t, rec.Delete(), ErrInvalidState)
}

func TestRecorder_PushMode(t *testing.T) {
	rt := toneRuntime(t, false)

	var (
		mu     sync.Mutex
		frames int
	)
	rec, err := rt.New(t.Context(), Config{
		FrameLength: 160,
		DeviceIndex: DefaultDeviceIndex,
		OnFrame: func(frame []int16) {
			mu.Lock()
			defer mu.Unlock()
			assert.Len(t, frame, 160)
			frames++
		},
	})
	require.NoError(t, err)
	require.NoError(t, rec.Start())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames >= 3
	}, 2*time.Second, 5*time.Millisecond)

	_, err = rec.Read(t.Context())
	require.ErrorIs(t, err, ErrInvalidState)
	require.NoError(t, rec.Delete())
	assert.Zero(t, rec.Stats().Dropped)
}

func TestRecorder_PullFromTone(t *testing.T) {
	rt := toneRuntime(t, true)

	rec, err := rt.New(t.Context(), Config{FrameLength: 160, DeviceIndex: DefaultDeviceIndex, BufferedFrames: 8})
	require.NoError(t, err)
	require.NoError(t, rec.Start())

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	frame, err := rec.Read(ctx)
	require.NoError(t, err)
	require.Len(t, frame, 160)
	assert.NotEqual(t, make([]int16, 160), frame, "tone frames are not silent")

	w := httptest.NewRecorder()
	rt.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "audiocapture_frames_captured_total")

	require.NoError(t, rec.Delete())
}

func TestSetup_VirtualToneFromConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	yaml := "recorder:\n  backend: virtual\n  virtual_tone:\n    frequency: 1000\n    amplitude: 4000\nlogging:\n  console:\n    enabled: false\n"
	require.NoError(t, afero.WriteFile(fs, "/etc/audiocapture.yaml", []byte(yaml), 0o644))

	rt, err := Setup("/etc/audiocapture.yaml", WithFs(fs))
	require.NoError(t, err)
	defer rt.Close()

	rec, err := rt.New(t.Context(), Config{FrameLength: 160, DeviceIndex: DefaultDeviceIndex})
	require.NoError(t, err)
	defer func() { require.NoError(t, rec.Delete()) }()
	require.NoError(t, rec.Start())

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	frame, err := rec.Read(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, make([]int16, 160), frame)
	for _, s := range frame {
		assert.LessOrEqual(t, max(s, -s), int16(4000))
	}
}

func TestSessionOptions_CallerLoggingFlagsWin(t *testing.T) {
	off, on := false, true

	tests := []struct {
		name         string
		configured   bool
		logOverflow  *bool
		logSilence   *bool
		wantOverflow bool
		wantSilence  bool
	}{
		{"unset keeps configured on", true, nil, nil, true, true},
		{"unset keeps configured off", false, nil, nil, false, false},
		{"caller disables", true, &off, &off, false, false},
		{"caller enables", false, &on, &on, true, true},
		{"mixed", true, &off, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings(false)
			settings.Recorder.LogOverflow = tt.configured
			settings.Recorder.LogSilence = tt.configured
			rt := newTestRuntime(t, settings)

			opts := rt.sessionOptions(Config{
				FrameLength: 512,
				DeviceIndex: DefaultDeviceIndex,
				LogOverflow: tt.logOverflow,
				LogSilence:  tt.logSilence,
			})
			assert.Equal(t, tt.wantOverflow, opts.LogOverflow)
			assert.Equal(t, tt.wantSilence, opts.LogSilence)
			assert.Equal(t, 512, opts.FrameLength)
			assert.Equal(t, conf.DefaultBufferedFrames, opts.BufferedFrames)
		})
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	rt := virtualRuntime(t, false)

	rec := httptest.NewRecorder()
	rt.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "1.2.0", Version())
	assert.Equal(t, 16000, SampleRate())
	assert.Equal(t, Success, StatusOf(nil))
}
