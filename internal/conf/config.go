// config.go: settings struct for imagelens and functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/imagelens/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings holds general application settings.
type MainSettings struct {
	Name  string `yaml:"name" mapstructure:"name"`   // instance name, used as MQTT client id prefix
	Debug bool   `yaml:"debug" mapstructure:"debug"` // true to enable debug output
}

// PipelineSettings is the requested pipeline configuration. The preferences
// table may override it at runtime.
type PipelineSettings struct {
	EnabledLayers           []string      `yaml:"enabledlayers" mapstructure:"enabledlayers"`
	MaxConcurrentLayers     int           `yaml:"maxconcurrentlayers" mapstructure:"maxconcurrentlayers"`
	PreferAccuracyOverSpeed bool          `yaml:"preferaccuracy" mapstructure:"preferaccuracy"`
	CacheResults            bool          `yaml:"cacheresults" mapstructure:"cacheresults"`
	GenerateEmbeddings      bool          `yaml:"generateembeddings" mapstructure:"generateembeddings"`
	ThermalThrottling       bool          `yaml:"thermalthrottling" mapstructure:"thermalthrottling"`
	LayerTimeout            time.Duration `yaml:"layertimeout" mapstructure:"layertimeout"` // per-layer deadline, 0 disables
}

// ModelSettings points at the TFLite models used by model-backed layers.
type ModelSettings struct {
	Detection    string `yaml:"detection" mapstructure:"detection"`       // object detection model path
	Labels       string `yaml:"labels" mapstructure:"labels"`             // optional label file, one label per line
	Segmentation string `yaml:"segmentation" mapstructure:"segmentation"` // segmentation model path
	Depth        string `yaml:"depth" mapstructure:"depth"`               // depth estimation model path
	Threads      int    `yaml:"threads" mapstructure:"threads"`           // interpreter threads, 0 for automatic
	UseXNNPACK   bool   `yaml:"usexnnpack" mapstructure:"usexnnpack"`     // true to use XNNPACK delegate
}

// OCRSettings configures the tesseract text recognizer.
type OCRSettings struct {
	Languages     []string `yaml:"languages" mapstructure:"languages"`         // tesseract language codes
	TessData      string   `yaml:"tessdata" mapstructure:"tessdata"`           // tessdata directory, empty for system default
	Barcodes      bool     `yaml:"barcodes" mapstructure:"barcodes"`           // true to scan QR and 1D codes
	MinConfidence float64  `yaml:"minconfidence" mapstructure:"minconfidence"` // drop text lines below this confidence (0-1)
}

// CacheSettings configures the result cache.
type CacheSettings struct {
	Backend    string        `yaml:"backend" mapstructure:"backend"`       // sqlite or mysql
	Path       string        `yaml:"path" mapstructure:"path"`             // sqlite database path
	MaxEntries int           `yaml:"maxentries" mapstructure:"maxentries"` // count limit enforced after each insert
	MaxAge     time.Duration `yaml:"maxage" mapstructure:"maxage"`         // age limit enforced at startup
	MemoryTTL  time.Duration `yaml:"memoryttl" mapstructure:"memoryttl"`   // in-memory front cache TTL, 0 disables
}

// MySQLSettings holds connection details for the mysql cache backend.
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// EmbeddingSettings configures the embedding service used for semantic search.
type EmbeddingSettings struct {
	URL       string        `yaml:"url" mapstructure:"url"`             // ollama base URL
	Model     string        `yaml:"model" mapstructure:"model"`         // embedding model name
	RateLimit float64       `yaml:"ratelimit" mapstructure:"ratelimit"` // requests per second, 0 for unlimited
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MQTTSettings contains settings for MQTT result publishing.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"` // tcp://host:port
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Listen         string   `yaml:"listen" mapstructure:"listen"`                 // address:port
	MaxUploadSize  int64    `yaml:"maxuploadsize" mapstructure:"maxuploadsize"`   // bytes
	AllowedOrigins []string `yaml:"allowedorigins" mapstructure:"allowedorigins"` // CORS origins for browser clients
}

// SentrySettings configures optional error reporting.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// TelemetrySettings contains settings for metrics and error reporting.
type TelemetrySettings struct {
	Prometheus bool           `yaml:"prometheus" mapstructure:"prometheus"` // expose /metrics
	Sentry     SentrySettings `yaml:"sentry" mapstructure:"sentry"`
}

// LocationSettings is used for time-of-day inference from sun events.
type LocationSettings struct {
	Latitude  float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `yaml:"longitude" mapstructure:"longitude"`
}

// Configured reports whether a non-default location was set.
func (l LocationSettings) Configured() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// Settings is the root configuration.
type Settings struct {
	Main      MainSettings         `yaml:"main" mapstructure:"main"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Pipeline  PipelineSettings     `yaml:"pipeline" mapstructure:"pipeline"`
	Models    ModelSettings        `yaml:"models" mapstructure:"models"`
	OCR       OCRSettings          `yaml:"ocr" mapstructure:"ocr"`
	Cache     CacheSettings        `yaml:"cache" mapstructure:"cache"`
	MySQL     MySQLSettings        `yaml:"mysql" mapstructure:"mysql"`
	Embedding EmbeddingSettings    `yaml:"embedding" mapstructure:"embedding"`
	MQTT      MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	WebServer WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Location  LocationSettings     `yaml:"location" mapstructure:"location"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	configFile       string
)

// SetConfigFile makes Load read an explicit file instead of searching the
// default config paths. An empty path restores the search.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFile = path
}

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // config is not secret until edited by the user
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// ConfigFileUsed returns the path of the loaded config file, empty before Load.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveSettings writes the current settings back to the config file in use.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	if settingsInstance == nil {
		return fmt.Errorf("settings not loaded")
	}

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		var err error
		configPath, err = FindConfigFile()
		if err != nil {
			return fmt.Errorf("error finding config file: %w", err)
		}
	}

	settingsCopy := *settingsInstance
	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	GetLogger().Info("settings saved", logger.String("path", configPath))
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temp file in the same directory, then rename for an atomic swap
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// Cross-device rename, fall back to copy
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}
