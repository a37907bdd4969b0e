// Package conf loads recorder settings from defaults, an optional YAML file
// and AUDIOCAPTURE_* environment variables, in increasing precedence.
package conf

import (
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/logger"
	"github.com/tphakala/audiocapture/internal/telemetry"
)

// ConfigName is the base name of the configuration file.
const ConfigName = "audiocapture"

// RecorderSettings configures a capture session.
type RecorderSettings struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`                     // "malgo" or "virtual"
	DeviceIndex      int    `yaml:"device_index" mapstructure:"device_index"`           // -1 selects the default device
	FrameLength      int    `yaml:"frame_length" mapstructure:"frame_length"`           // samples per frame
	BufferedFrames   int    `yaml:"buffered_frames" mapstructure:"buffered_frames"`     // ring depth in frames
	LogOverflow      bool   `yaml:"log_overflow" mapstructure:"log_overflow"`           // warn when frames are dropped
	LogSilence       bool   `yaml:"log_silence" mapstructure:"log_silence"`             // warn on sustained silence
	Debug            bool   `yaml:"debug" mapstructure:"debug"`                         // verbose session logging
	SilenceThreshold int    `yaml:"silence_threshold" mapstructure:"silence_threshold"` // max |sample| counted as silent
	SilenceWindow    int    `yaml:"silence_window" mapstructure:"silence_window"`       // silent samples before a warning, 0 = 2 seconds

	VirtualTone ToneSettings `yaml:"virtual_tone" mapstructure:"virtual_tone"` // signal of the virtual backend
}

// ToneSettings makes the virtual backend generate a sine tone, so hosts
// without audio hardware still produce frames. Frequency 0 disables it.
type ToneSettings struct {
	Frequency float64 `yaml:"frequency" mapstructure:"frequency"` // Hz, below the Nyquist limit of 8 kHz
	Amplitude int     `yaml:"amplitude" mapstructure:"amplitude"` // peak sample value
}

// DiagnosticsSettings throttles warning logs emitted from capture events.
type DiagnosticsSettings struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"` // minimum spacing of repeated warnings
	Burst    int           `yaml:"burst" mapstructure:"burst"`       // warnings allowed back to back
}

// MetricsSettings toggles Prometheus metrics.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Settings is the full configuration.
type Settings struct {
	Recorder    RecorderSettings     `yaml:"recorder" mapstructure:"recorder"`
	Diagnostics DiagnosticsSettings  `yaml:"diagnostics" mapstructure:"diagnostics"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics     MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry   telemetry.Config     `yaml:"telemetry" mapstructure:"telemetry"`
}

type loadOptions struct {
	fs          afero.Fs
	paths       []string
	file        string
	environment bool
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithFs reads configuration from fs instead of the OS file system.
func WithFs(fs afero.Fs) LoadOption {
	return func(o *loadOptions) { o.fs = fs }
}

// WithConfigPaths replaces the directories searched for audiocapture.yaml.
func WithConfigPaths(paths ...string) LoadOption {
	return func(o *loadOptions) { o.paths = paths }
}

// WithConfigFile reads exactly this file; it must exist.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) { o.file = path }
}

// WithoutEnvironment ignores AUDIOCAPTURE_* variables.
func WithoutEnvironment() LoadOption {
	return func(o *loadOptions) { o.environment = false }
}

// DefaultConfigPaths are searched in order when no file is given.
func DefaultConfigPaths() []string {
	return []string{".", "$HOME/.config/audiocapture", "/etc/audiocapture"}
}

// Load builds Settings. A missing config file is not an error.
func Load(opts ...LoadOption) (*Settings, error) {
	o := loadOptions{
		fs:          afero.NewOsFs(),
		paths:       DefaultConfigPaths(),
		environment: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetFs(o.fs)
	setDefaults(v)

	if o.file != "" {
		v.SetConfigFile(o.file)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, p := range o.paths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.file != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Build()
		}
	}

	if o.environment {
		if err := bindEnvVars(v); err != nil {
			return nil, err
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Default returns the built-in settings.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		panic(err) // defaults are static
	}
	return settings
}

// ConfigFileUsed reports the file Load would read from fs, or "" when none
// exists.
func ConfigFileUsed(fs afero.Fs, paths ...string) string {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}
