package conf

import (
	"math"

	"github.com/tphakala/audiocapture/internal/errors"
	"github.com/tphakala/audiocapture/internal/status"
)

// Validate reports every invalid field at once. The result carries
// status.InvalidArgument.
func (s *Settings) Validate() error {
	var errs []error
	r := s.Recorder

	if r.FrameLength <= 0 {
		errs = append(errs, errors.Newf("recorder.frame_length must be positive, got %d", r.FrameLength).Category(errors.CategoryValidation).Build())
	}
	if r.BufferedFrames <= 0 {
		errs = append(errs, errors.Newf("recorder.buffered_frames must be positive, got %d", r.BufferedFrames).Category(errors.CategoryValidation).Build())
	}
	if r.DeviceIndex < DefaultDeviceIndex {
		errs = append(errs, errors.Newf("recorder.device_index must be -1 or a device index, got %d", r.DeviceIndex).Category(errors.CategoryValidation).Build())
	}
	if r.SilenceThreshold < 0 {
		errs = append(errs, errors.Newf("recorder.silence_threshold must not be negative, got %d", r.SilenceThreshold).Category(errors.CategoryValidation).Build())
	}
	if r.SilenceWindow < 0 {
		errs = append(errs, errors.Newf("recorder.silence_window must not be negative, got %d", r.SilenceWindow).Category(errors.CategoryValidation).Build())
	}
	if tone := r.VirtualTone; tone.Frequency < 0 || tone.Frequency >= maxToneFrequency {
		errs = append(errs, errors.Newf("recorder.virtual_tone.frequency must be in [0, %d) Hz, got %g", maxToneFrequency, tone.Frequency).Category(errors.CategoryValidation).Build())
	}
	if tone := r.VirtualTone; tone.Amplitude < 0 || tone.Amplitude > math.MaxInt16 {
		errs = append(errs, errors.Newf("recorder.virtual_tone.amplitude must be in [0, %d], got %d", math.MaxInt16, tone.Amplitude).Category(errors.CategoryValidation).Build())
	}
	if r.Backend == "" {
		errs = append(errs, errors.Newf("recorder.backend must be set").Category(errors.CategoryValidation).Build())
	}
	if s.Diagnostics.Interval < 0 || s.Diagnostics.Burst < 0 {
		errs = append(errs, errors.Newf("diagnostics interval and burst must not be negative").Category(errors.CategoryValidation).Build())
	}
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		errs = append(errs, errors.Newf("telemetry.dsn is required when telemetry is enabled").Category(errors.CategoryValidation).Build())
	}

	if len(errs) == 0 {
		return nil
	}
	return status.New(status.InvalidArgument, "conf", "validate", errors.Join(errs...))
}
