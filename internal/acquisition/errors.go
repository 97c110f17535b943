package acquisition

import (
	"fmt"

	"github.com/digitizerlab/ats-go/internal/errors"
)

// ComponentAcquisition identifies acquisition errors in logs and telemetry
const ComponentAcquisition = "acquisition"

// ErrAborted is returned by a capture loop that observed an Abort request
var ErrAborted = errors.NewStd("acquisition aborted")

// ConfigurationError reports a value outside a field's domain
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid value %v for %s: %s", e.Value, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid value %v for %s", e.Value, e.Field)
}

// ErrorCategory implements errors.CategorizedError
func (e *ConfigurationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConfiguration
}

// UnsetFieldError reports a device code requested before any value was set
type UnsetFieldError struct {
	Field string
}

func (e *UnsetFieldError) Error() string {
	return fmt.Sprintf("field %s has no value", e.Field)
}

// ErrorCategory implements errors.CategorizedError
func (e *UnsetFieldError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConfiguration
}

// UnsupportedModeError reports an acquisition mode other than NPT or TS
type UnsupportedModeError struct {
	Mode Mode
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("acquisition mode %s is not supported, use npt or ts", e.Mode)
}

// ErrorCategory implements errors.CategorizedError
func (e *UnsupportedModeError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryUnsupported
}

// UnsupportedFormatError reports a sample width or platform the engine
// cannot capture with
type UnsupportedFormatError struct {
	BitsPerSample uint8
	Reason        string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Reason != "" {
		return "unsupported format: " + e.Reason
	}
	return fmt.Sprintf("unsupported format: %d bits per sample, only 8 is supported", e.BitsPerSample)
}

// ErrorCategory implements errors.CategorizedError
func (e *UnsupportedFormatError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryUnsupported
}

// DeviceCallError reports a documented non-success status
type DeviceCallError struct {
	Operation string
	Code      StatusCode
	Name      string
	Message   string
	Class     ErrorClass
}

func (e *DeviceCallError) Error() string {
	text := e.Name
	if e.Message != "" {
		text += ": " + e.Message
	}
	return fmt.Sprintf("%s raised %d: %s", e.Operation, e.Code, text)
}

// Retryable reports whether the status is timeout- or transient-class
func (e *DeviceCallError) Retryable() bool {
	return e.Class.Retryable()
}

// ErrorCategory implements errors.CategorizedError
func (e *DeviceCallError) ErrorCategory() errors.ErrorCategory {
	if e.Retryable() {
		return errors.CategoryDeviceTimeout
	}
	return errors.CategoryDevice
}

// UnknownDeviceError reports a status code missing from the taxonomy
type UnknownDeviceError struct {
	Operation string
	Code      StatusCode
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("%s raised unknown error %d", e.Operation, e.Code)
}

// ErrorCategory implements errors.CategorizedError
func (e *UnknownDeviceError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryDeviceUnknown
}

// ResourceAllocationError reports a failed pinned buffer allocation
type ResourceAllocationError struct {
	Count int
	Size  int
	Err   error
}

func (e *ResourceAllocationError) Error() string {
	return fmt.Sprintf("allocate %d buffers of %d bytes: %v", e.Count, e.Size, e.Err)
}

func (e *ResourceAllocationError) Unwrap() error {
	return e.Err
}

// ErrorCategory implements errors.CategorizedError
func (e *ResourceAllocationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryBuffer
}

// IsRetryable reports whether err carries a device status a caller may
// retry the acquisition on
func IsRetryable(err error) bool {
	var dce *DeviceCallError
	return errors.As(err, &dce) && dce.Retryable()
}

// wrapError attaches engine context to err. Typed errors stay reachable
// through errors.As.
func wrapError(err error, operation, sessionID string) error {
	if err == nil {
		return nil
	}
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return err
	}
	b := errors.New(err).
		Component(ComponentAcquisition).
		Context("operation", operation)
	switch {
	case errors.Is(err, ErrAborted):
		b = b.Category(errors.CategoryCancellation)
	default:
		var dce *DeviceCallError
		if errors.As(err, &dce) {
			b = b.Context("status_code", uint32(dce.Code)).Context("error_class", string(dce.Class))
		}
		var ude *UnknownDeviceError
		if errors.As(err, &ude) {
			b = b.Context("status_code", uint32(ude.Code))
		}
	}
	if sessionID != "" {
		b = b.Context("session_id", sessionID)
	}
	return b.Build()
}
