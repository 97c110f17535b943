// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/digitizerlab/ats-go/internal/acquisition"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateBoardSettings(&settings.Board); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Board parameters are checked by the registry that will hold them
	ve.Errors = append(ve.Errors, validateEngineSettings(settings)...)

	if err := validateAcquisitionSettings(&settings.Acquisition); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMetricsSettings(&settings.Metrics); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOutputSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateBoardSettings validates the driver selection and loop settings
func validateBoardSettings(settings *BoardSettings) error {
	var errs []string

	switch settings.Driver {
	case DriverSimulator, DriverATSApi:
	default:
		errs = append(errs, fmt.Sprintf("board driver must be %q or %q, got %q",
			DriverSimulator, DriverATSApi, settings.Driver))
	}

	if settings.WaitTimeout <= 0 {
		errs = append(errs, "board wait_timeout must be positive")
	}

	if settings.BufferCount < 0 {
		errs = append(errs, "board buffer_count must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("board settings errors: %v", errs)
	}
	return nil
}

// validateEngineSettings applies each board setting to a fresh registry and
// collects the rejections
func validateEngineSettings(settings *Settings) []string {
	r := acquisition.NewRegistry()
	var errs []string
	for _, s := range settings.EngineSettings() {
		if err := r.Apply(s); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// validateAcquisitionSettings checks what the registry accepts but an
// acquisition cannot run with
func validateAcquisitionSettings(settings *AcquisitionSettings) error {
	mode := acquisition.Mode(settings.Mode)
	if mode != "" && !mode.Supported() {
		return fmt.Errorf("acquisition mode %q is not supported for streaming, use %q or %q",
			settings.Mode, acquisition.ModeNPT, acquisition.ModeTS)
	}
	return nil
}

// validateMetricsSettings validates the Prometheus endpoint settings
func validateMetricsSettings(settings *MetricsSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("metrics listen address %q is invalid: %w", settings.Listen, err)
	}
	return nil
}

// validateTelemetrySettings validates the Sentry settings
func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && strings.TrimSpace(settings.DSN) == "" {
		return fmt.Errorf("telemetry is enabled but no dsn is set")
	}
	return nil
}

// validateOutputSettings validates the sink settings
func validateOutputSettings(settings *Settings) error {
	var errs []string
	if settings.Output.RingSize < 0 {
		errs = append(errs, "output ring_size must not be negative")
	}
	if settings.Output.WAVPath != "" && settings.WAVSampleRate() == 0 {
		errs = append(errs, "output wav_path needs output.wav_sample_rate when the sample rate is external")
	}
	if len(errs) > 0 {
		return fmt.Errorf("output settings errors: %v", errs)
	}
	return nil
}
