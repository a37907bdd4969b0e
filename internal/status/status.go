// Package status defines the closed set of outcomes every recorder operation
// reports. Callers discriminate kinds with errors.Is against the exported
// sentinels or with Of.
package status

import (
	"context"
	"fmt"

	"github.com/tphakala/audiocapture/internal/errors"
)

// Status is the outcome of a recorder operation.
type Status int

const (
	Success Status = iota
	OutOfMemory
	InvalidArgument
	InvalidState
	BackendError
	DeviceAlreadyInitialized
	DeviceNotInitialized
	IoError
	RuntimeError
)

var statusNames = [...]string{
	Success:                  "SUCCESS",
	OutOfMemory:              "OUT_OF_MEMORY",
	InvalidArgument:          "INVALID_ARGUMENT",
	InvalidState:             "INVALID_STATE",
	BackendError:             "BACKEND_ERROR",
	DeviceAlreadyInitialized: "DEVICE_ALREADY_INITIALIZED",
	DeviceNotInitialized:     "DEVICE_NOT_INITIALIZED",
	IoError:                  "IO_ERROR",
	RuntimeError:             "RUNTIME_ERROR",
}

// String returns the canonical upper-case name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
	return statusNames[s]
}

// Category maps a status onto the error category used for grouping and telemetry.
func (s Status) Category() errors.ErrorCategory {
	switch s {
	case InvalidArgument:
		return errors.CategoryValidation
	case InvalidState, DeviceAlreadyInitialized, DeviceNotInitialized:
		return errors.CategoryState
	case BackendError:
		return errors.CategoryAudioBackend
	case OutOfMemory:
		return errors.CategoryResource
	case IoError:
		return errors.CategoryFileIO
	default:
		return errors.CategoryGeneric
	}
}

// Error is an operation failure carrying exactly one Status.
type Error struct {
	Status Status
	Op     string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Status.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Status, so the package sentinels work
// with errors.Is regardless of operation or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Status == e.Status
}

// ErrorCategory implements errors.CategorizedError
func (e *Error) ErrorCategory() errors.ErrorCategory {
	return e.Status.Category()
}

// Sentinels for errors.Is.
var (
	ErrOutOfMemory              = &Error{Status: OutOfMemory}
	ErrInvalidArgument          = &Error{Status: InvalidArgument}
	ErrInvalidState             = &Error{Status: InvalidState}
	ErrBackend                  = &Error{Status: BackendError}
	ErrDeviceAlreadyInitialized = &Error{Status: DeviceAlreadyInitialized}
	ErrDeviceNotInitialized     = &Error{Status: DeviceNotInitialized}
	ErrIO                       = &Error{Status: IoError}
	ErrRuntime                  = &Error{Status: RuntimeError}
)

// New returns an *Error for op. The cause is wrapped in an EnhancedError
// tagged with the status category and the given component.
func New(s Status, component, op string, cause error) *Error {
	if cause == nil {
		cause = errors.NewStd(s.String())
	}
	ee := errors.New(cause).
		Component(component).
		Category(s.Category()).
		Context("operation", op).
		Context("status", s.String()).
		Build()
	return &Error{Status: s, Op: op, Err: ee}
}

// Newf is New with a formatted cause.
func Newf(s Status, component, op, format string, args ...any) *Error {
	return New(s, component, op, fmt.Errorf(format, args...))
}

// Wrap attaches status s to err unless err already carries a status, in which
// case err is returned unchanged. A nil err yields nil.
func Wrap(s Status, component, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return New(s, component, op, err)
}

// Of reports the status carried by err. A nil error is Success, context
// cancellation is IoError, and an unclassified error is RuntimeError.
func Of(err error) Status {
	if err == nil {
		return Success
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return IoError
	}
	return RuntimeError
}
