package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiocapture/internal/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUDIOCAPTURE"

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"recorder.backend", "AUDIOCAPTURE_BACKEND", nil},
		{"recorder.device_index", "AUDIOCAPTURE_DEVICE_INDEX", validateEnvDeviceIndex},
		{"recorder.frame_length", "AUDIOCAPTURE_FRAME_LENGTH", validateEnvPositiveInt},
		{"recorder.buffered_frames", "AUDIOCAPTURE_BUFFERED_FRAMES", validateEnvPositiveInt},
		{"recorder.log_overflow", "AUDIOCAPTURE_LOG_OVERFLOW", validateEnvBool},
		{"recorder.log_silence", "AUDIOCAPTURE_LOG_SILENCE", validateEnvBool},
		{"recorder.debug", "AUDIOCAPTURE_DEBUG", validateEnvBool},
		{"recorder.virtual_tone.frequency", "AUDIOCAPTURE_VIRTUAL_TONE", validateEnvToneFrequency},
		{"diagnostics.interval", "AUDIOCAPTURE_DIAGNOSTICS_INTERVAL", validateEnvDuration},
		{"logging.default_level", "AUDIOCAPTURE_LOG_LEVEL", validateEnvLogLevel},
		{"logging.file_output.path", "AUDIOCAPTURE_LOG_FILE", nil},
		{"metrics.enabled", "AUDIOCAPTURE_METRICS_ENABLED", validateEnvBool},
		{"telemetry.enabled", "AUDIOCAPTURE_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "AUDIOCAPTURE_TELEMETRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and validates the ones that are set.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateEnvDeviceIndex(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("not an integer")
	}
	if n < DefaultDeviceIndex {
		return fmt.Errorf("must be -1 or a device index, got %d", n)
	}
	return nil
}

func validateEnvToneFrequency(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if f < 0 || f >= maxToneFrequency {
		return fmt.Errorf("must be in [0, %d) Hz, got %g", maxToneFrequency, f)
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("not a duration: %w", err)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of trace, debug, info, warn, error")
	}
}
