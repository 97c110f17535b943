// env.go - Environment variable configuration and validation for atsdaq
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by atsdaq
const EnvPrefix = "ATSDAQ"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the environment variable bindings that are checked
// before use. Other keys are still read through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "ATSDAQ_DEBUG", validateEnvBool},

		{"board.driver", "ATSDAQ_BOARD_DRIVER", validateEnvDriver},
		{"board.system_id", "ATSDAQ_BOARD_SYSTEM_ID", validateEnvUint},
		{"board.board_id", "ATSDAQ_BOARD_BOARD_ID", validateEnvUint},
		{"board.wait_timeout", "ATSDAQ_BOARD_WAIT_TIMEOUT", validateEnvDuration},

		{"acquisition.samples_per_record", "ATSDAQ_ACQUISITION_SAMPLES_PER_RECORD", validateEnvUint},
		{"acquisition.records_per_buffer", "ATSDAQ_ACQUISITION_RECORDS_PER_BUFFER", validateEnvUint},
		{"acquisition.buffers_per_acquisition", "ATSDAQ_ACQUISITION_BUFFERS_PER_ACQUISITION", validateEnvUint},

		{"metrics.enabled", "ATSDAQ_METRICS_ENABLED", validateEnvBool},
		{"telemetry.enabled", "ATSDAQ_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "ATSDAQ_TELEMETRY_DSN", nil},
		{"output.wav_path", "ATSDAQ_OUTPUT_WAV_PATH", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

// validateEnvUint validates unsigned 32-bit environment variables
func validateEnvUint(value string) error {
	if _, err := strconv.ParseUint(value, 10, 32); err != nil {
		return fmt.Errorf("must be an unsigned 32-bit integer")
	}
	return nil
}

// validateEnvDuration validates duration environment variables
func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 5s")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

// validateEnvDriver validates the driver name
func validateEnvDriver(value string) error {
	if value != DriverSimulator && value != DriverATSApi {
		return fmt.Errorf("must be %s or %s", DriverSimulator, DriverATSApi)
	}
	return nil
}
