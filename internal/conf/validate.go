// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/tphakala/imagelens/internal/vision"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. It also normalizes
// list values that arrive from the environment as a single string.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validatePipelineSettings,
		validateModelSettings,
		validateCacheSettings,
		validateEmbeddingSettings,
		validateMQTTSettings,
		validateWebServerSettings,
		validateLocationSettings,
		func(s *Settings) error { return s.Logging.Validate() },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validatePipelineSettings(s *Settings) error {
	p := &s.Pipeline

	// A single env value like "textRecognition,description" arrives as one element
	var layers []string
	for _, entry := range p.EnabledLayers {
		layers = append(layers, splitList(entry)...)
	}
	p.EnabledLayers = layers

	for _, name := range p.EnabledLayers {
		if _, ok := vision.ParseLayer(name); !ok {
			return fmt.Errorf("pipeline.enabledlayers: unknown layer %q", name)
		}
	}
	if p.MaxConcurrentLayers < 1 {
		return fmt.Errorf("pipeline.maxconcurrentlayers must be at least 1, got %d", p.MaxConcurrentLayers)
	}
	if p.LayerTimeout < 0 {
		return fmt.Errorf("pipeline.layertimeout must not be negative")
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	if s.Models.Threads < 0 {
		return fmt.Errorf("models.threads must not be negative")
	}
	return nil
}

func validateCacheSettings(s *Settings) error {
	c := &s.Cache
	switch c.Backend {
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("cache.path is required for the sqlite backend")
		}
	case "mysql":
		if s.MySQL.Host == "" || s.MySQL.Database == "" {
			return fmt.Errorf("mysql.host and mysql.database are required for the mysql backend")
		}
	default:
		return fmt.Errorf("cache.backend must be sqlite or mysql, got %q", c.Backend)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache.maxentries must not be negative")
	}
	if c.MaxAge < 0 || c.MemoryTTL < 0 {
		return fmt.Errorf("cache.maxage and cache.memoryttl must not be negative")
	}
	return nil
}

func validateEmbeddingSettings(s *Settings) error {
	if !s.Pipeline.GenerateEmbeddings {
		return nil
	}
	if s.Embedding.URL == "" || s.Embedding.Model == "" {
		return fmt.Errorf("embedding.url and embedding.model are required when embeddings are enabled")
	}
	if s.Embedding.RateLimit < 0 {
		return fmt.Errorf("embedding.ratelimit must not be negative")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if s.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}

func validateWebServerSettings(s *Settings) error {
	if s.WebServer.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.WebServer.Listen); err != nil {
		return fmt.Errorf("webserver.listen: %w", err)
	}
	if s.WebServer.MaxUploadSize < 0 {
		return fmt.Errorf("webserver.maxuploadsize must not be negative")
	}
	return nil
}

func validateLocationSettings(s *Settings) error {
	if s.Location.Latitude < -90 || s.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude must be between -90 and 90")
	}
	if s.Location.Longitude < -180 || s.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude must be between -180 and 180")
	}
	return nil
}
