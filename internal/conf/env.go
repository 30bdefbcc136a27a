// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/imagelens/internal/vision"
)

// EnvPrefix is prepended to every environment variable, e.g. IMAGELENS_CACHE_PATH.
const EnvPrefix = "IMAGELENS"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings returns the bindings that get value validation. Every other
// key is still reachable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"pipeline.enabledlayers", "IMAGELENS_PIPELINE_ENABLEDLAYERS", validateEnvLayers},
		{"pipeline.maxconcurrentlayers", "IMAGELENS_PIPELINE_MAXCONCURRENTLAYERS", validateEnvPositiveInt},
		{"pipeline.cacheresults", "IMAGELENS_PIPELINE_CACHERESULTS", validateEnvBool},
		{"pipeline.thermalthrottling", "IMAGELENS_PIPELINE_THERMALTHROTTLING", validateEnvBool},
		{"pipeline.layertimeout", "IMAGELENS_PIPELINE_LAYERTIMEOUT", validateEnvDuration},

		{"models.threads", "IMAGELENS_MODELS_THREADS", validateEnvNonNegativeInt},
		{"models.usexnnpack", "IMAGELENS_MODELS_USEXNNPACK", validateEnvBool},

		{"cache.backend", "IMAGELENS_CACHE_BACKEND", validateEnvBackend},
		{"cache.maxentries", "IMAGELENS_CACHE_MAXENTRIES", validateEnvNonNegativeInt},
		{"cache.maxage", "IMAGELENS_CACHE_MAXAGE", validateEnvDuration},

		{"location.latitude", "IMAGELENS_LOCATION_LATITUDE", validateEnvLatitude},
		{"location.longitude", "IMAGELENS_LOCATION_LONGITUDE", validateEnvLongitude},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration such as 30s or 168h")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch value {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("must be sqlite or mysql")
	}
}

// validateEnvLayers accepts a space or comma separated list of layer names
func validateEnvLayers(value string) error {
	for _, name := range splitList(value) {
		if _, ok := vision.ParseLayer(name); !ok {
			return fmt.Errorf("unknown layer %q", name)
		}
	}
	return nil
}

func validateEnvLatitude(value string) error {
	lat, err := strconv.ParseFloat(value, 64)
	if err != nil || lat < -90 || lat > 90 {
		return fmt.Errorf("must be between -90 and 90")
	}
	return nil
}

func validateEnvLongitude(value string) error {
	lon, err := strconv.ParseFloat(value, 64)
	if err != nil || lon < -180 || lon > 180 {
		return fmt.Errorf("must be between -180 and 180")
	}
	return nil
}

// splitList splits on commas and whitespace, dropping empty entries
func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
