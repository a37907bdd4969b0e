package conf

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/status"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	settings, err := Load(WithFs(fs), WithConfigPaths("/etc/audiocapture"), WithoutEnvironment())
	require.NoError(t, err)

	assert.Equal(t, DefaultBackend, settings.Recorder.Backend)
	assert.Equal(t, DefaultDeviceIndex, settings.Recorder.DeviceIndex)
	assert.Equal(t, DefaultFrameLength, settings.Recorder.FrameLength)
	assert.Equal(t, DefaultBufferedFrames, settings.Recorder.BufferedFrames)
	assert.True(t, settings.Recorder.LogOverflow)
	assert.True(t, settings.Recorder.LogSilence)
	assert.Zero(t, settings.Recorder.VirtualTone.Frequency, "tone is off by default")
	assert.Equal(t, DefaultToneAmplitude, settings.Recorder.VirtualTone.Amplitude)
	assert.Equal(t, time.Second, settings.Diagnostics.Interval)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.FileOutput)
	assert.False(t, settings.Logging.FileOutput.Enabled)
	assert.False(t, settings.Metrics.Enabled)
	assert.False(t, settings.Telemetry.Enabled)
}

func TestDefault_MatchesLoad(t *testing.T) {
	loaded, err := Load(WithFs(afero.NewMemMapFs()), WithConfigPaths("/nowhere"), WithoutEnvironment())
	require.NoError(t, err)
	assert.Equal(t, loaded, Default())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	yaml := `
recorder:
  backend: virtual
  device_index: 2
  frame_length: 256
  buffered_frames: 8
  log_silence: false
  virtual_tone:
    frequency: 440
diagnostics:
  interval: 250ms
logging:
  default_level: debug
`
	require.NoError(t, afero.WriteFile(fs, "/etc/audiocapture/audiocapture.yaml", []byte(yaml), 0o644))

	settings, err := Load(WithFs(fs), WithConfigPaths("/etc/audiocapture"), WithoutEnvironment())
	require.NoError(t, err)

	assert.Equal(t, "virtual", settings.Recorder.Backend)
	assert.Equal(t, 2, settings.Recorder.DeviceIndex)
	assert.Equal(t, 256, settings.Recorder.FrameLength)
	assert.Equal(t, 8, settings.Recorder.BufferedFrames)
	assert.False(t, settings.Recorder.LogSilence)
	assert.True(t, settings.Recorder.LogOverflow, "unset keys keep defaults")
	assert.InDelta(t, 440.0, settings.Recorder.VirtualTone.Frequency, 0)
	assert.Equal(t, DefaultToneAmplitude, settings.Recorder.VirtualTone.Amplitude)
	assert.Equal(t, 250*time.Millisecond, settings.Diagnostics.Interval)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	_, err := Load(WithFs(afero.NewMemMapFs()), WithConfigFile("/missing.yaml"), WithoutEnvironment())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoad_MalformedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/audiocapture.yaml", []byte("recorder: [unclosed"), 0o644))

	_, err := Load(WithFs(fs), WithConfigPaths("/cfg"), WithoutEnvironment())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoad_InvalidValuesFailValidation(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/audiocapture.yaml",
		[]byte("recorder:\n  frame_length: 0\n  device_index: -2\n"), 0o644))

	_, err := Load(WithFs(fs), WithConfigPaths("/cfg"), WithoutEnvironment())
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "frame_length")
	assert.Contains(t, err.Error(), "device_index")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/audiocapture.yaml",
		[]byte("recorder:\n  frame_length: 256\n  backend: malgo\n"), 0o644))

	t.Setenv("AUDIOCAPTURE_FRAME_LENGTH", "1024")
	t.Setenv("AUDIOCAPTURE_BACKEND", "virtual")
	t.Setenv("AUDIOCAPTURE_DEBUG", "true")
	t.Setenv("AUDIOCAPTURE_METRICS_ENABLED", "1")

	settings, err := Load(WithFs(fs), WithConfigPaths("/cfg"))
	require.NoError(t, err)

	assert.Equal(t, 1024, settings.Recorder.FrameLength)
	assert.Equal(t, "virtual", settings.Recorder.Backend)
	assert.True(t, settings.Recorder.Debug)
	assert.True(t, settings.Metrics.Enabled)
}

func TestLoad_InvalidEnvironmentValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"bool", "AUDIOCAPTURE_DEBUG", "maybe"},
		{"positive int", "AUDIOCAPTURE_BUFFERED_FRAMES", "0"},
		{"not an int", "AUDIOCAPTURE_FRAME_LENGTH", "abc"},
		{"device index", "AUDIOCAPTURE_DEVICE_INDEX", "-5"},
		{"duration", "AUDIOCAPTURE_DIAGNOSTICS_INTERVAL", "soon"},
		{"log level", "AUDIOCAPTURE_LOG_LEVEL", "loud"},
		{"tone above nyquist", "AUDIOCAPTURE_VIRTUAL_TONE", "9000"},
		{"tone not a number", "AUDIOCAPTURE_VIRTUAL_TONE", "a4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load(WithFs(afero.NewMemMapFs()), WithConfigPaths("/cfg"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestValidate_VirtualTone(t *testing.T) {
	tests := []struct {
		name      string
		frequency float64
		amplitude int
		valid     bool
	}{
		{"off", 0, DefaultToneAmplitude, true},
		{"a4", 440, 1000, true},
		{"negative frequency", -1, 1000, false},
		{"nyquist", 8000, 1000, false},
		{"amplitude overflows int16", 440, 40000, false},
		{"negative amplitude", 440, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			s.Recorder.VirtualTone = ToneSettings{Frequency: tt.frequency, Amplitude: tt.amplitude}

			err := s.Validate()
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, status.InvalidArgument, status.Of(err))
			assert.Contains(t, err.Error(), "virtual_tone")
		})
	}
}

func TestValidate_TelemetryNeedsDSN(t *testing.T) {
	s := Default()
	s.Telemetry.Enabled = true

	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.Of(err))

	s.Telemetry.DSN = "https://key@example.invalid/1"
	assert.NoError(t, s.Validate())
}

func TestSaveYAML_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := Default()
	s.Recorder.Backend = "virtual"
	s.Recorder.FrameLength = 320
	s.Recorder.SilenceWindow = 8000

	require.NoError(t, SaveYAML(fs, "/home/user/.config/audiocapture/audiocapture.yaml", s))

	info, err := fs.Stat("/home/user/.config/audiocapture/audiocapture.yaml")
	require.NoError(t, err)
	assert.Equal(t, configFilePerm, int(info.Mode().Perm()))

	loaded, err := Load(WithFs(fs), WithConfigPaths("/home/user/.config/audiocapture"), WithoutEnvironment())
	require.NoError(t, err)
	assert.Equal(t, "virtual", loaded.Recorder.Backend)
	assert.Equal(t, 320, loaded.Recorder.FrameLength)
	assert.Equal(t, 8000, loaded.Recorder.SilenceWindow)
}

func TestConfigFileUsed(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.Empty(t, ConfigFileUsed(fs, "/a", "/b"))

	require.NoError(t, afero.WriteFile(fs, "/b/audiocapture.yaml", []byte("recorder: {}\n"), 0o644))
	assert.Equal(t, "/b/audiocapture.yaml", ConfigFileUsed(fs, "/a", "/b"))
}
