package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiocapture/internal/logger"
)

const (
	// DefaultFrameLength matches the frame size of common speech engines.
	DefaultFrameLength = 512
	// DefaultBufferedFrames is the default ring depth.
	DefaultBufferedFrames = 50
	// DefaultDeviceIndex selects the system default input.
	DefaultDeviceIndex = -1
	// DefaultSilenceThreshold counts |sample| <= 1 as silent.
	DefaultSilenceThreshold = 1
	DefaultBackend          = "malgo"
	// DefaultToneAmplitude is a quarter of full scale.
	DefaultToneAmplitude = 8192

	// maxToneFrequency is the Nyquist limit of the 16 kHz capture rate.
	maxToneFrequency = 8000
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("recorder.backend", DefaultBackend)
	v.SetDefault("recorder.device_index", DefaultDeviceIndex)
	v.SetDefault("recorder.frame_length", DefaultFrameLength)
	v.SetDefault("recorder.buffered_frames", DefaultBufferedFrames)
	v.SetDefault("recorder.log_overflow", true)
	v.SetDefault("recorder.log_silence", true)
	v.SetDefault("recorder.debug", false)
	v.SetDefault("recorder.silence_threshold", DefaultSilenceThreshold)
	v.SetDefault("recorder.silence_window", 0)
	v.SetDefault("recorder.virtual_tone.frequency", 0.0)
	v.SetDefault("recorder.virtual_tone.amplitude", DefaultToneAmplitude)

	v.SetDefault("diagnostics.interval", time.Second)
	v.SetDefault("diagnostics.burst", 3)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.sample_rate", 1.0)
}
