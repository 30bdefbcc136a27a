package logger

import (
	"fmt"
	"time"
)

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Timezone      string                  `yaml:"timezone" json:"timezone" mapstructure:"timezone"`
	DefaultLevel  string                  `yaml:"default_level" json:"default_level" mapstructure:"default_level"`
	Console       *ConsoleOutput          `yaml:"console" json:"console" mapstructure:"console"`
	FileOutput    *FileOutput             `yaml:"file_output" json:"file_output" mapstructure:"file_output"`
	ModuleOutputs map[string]ModuleOutput `yaml:"modules" json:"modules" mapstructure:"modules"`
	ModuleLevels  map[string]string       `yaml:"module_levels" json:"module_levels" mapstructure:"module_levels"`
	FlushInterval time.Duration           `yaml:"flush_interval" json:"flush_interval" mapstructure:"flush_interval"` // how often file output is flushed
}

// ConsoleOutput represents console logging configuration.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// FileOutput represents file logging configuration. File output is JSON.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// ModuleOutput represents per-module output configuration
type ModuleOutput struct {
	Enabled     bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	FilePath    string `yaml:"file_path" json:"file_path" mapstructure:"file_path"`
	Level       string `yaml:"level" json:"level" mapstructure:"level"`
	ConsoleAlso bool   `yaml:"console_also" json:"console_also" mapstructure:"console_also"`
}

// Default values for logging configuration, kept in sync with conf/defaults.go.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/imagelens.log"
	DefaultConsoleEnabled = true
	DefaultFlushInterval  = 2 * time.Second
)

// applyConfigDefaults fills nil configuration sections. File output is opt-in
// because the CLI is often run ad hoc against single images.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput != nil && cfg.FileOutput.Enabled && cfg.FileOutput.Path == "" {
		cfg.FileOutput.Path = DefaultLogPath
	}

	if cfg.ModuleOutputs == nil {
		cfg.ModuleOutputs = make(map[string]ModuleOutput)
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
}

// Validate checks level names across all outputs.
func (cfg *LoggingConfig) Validate() error {
	if cfg == nil {
		return nil
	}
	if err := validateLevel(cfg.DefaultLevel); err != nil {
		return fmt.Errorf("default_level: %w", err)
	}
	if cfg.Console != nil {
		if err := validateLevel(cfg.Console.Level); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}
	if cfg.FileOutput != nil {
		if err := validateLevel(cfg.FileOutput.Level); err != nil {
			return fmt.Errorf("file_output: %w", err)
		}
	}
	for module, level := range cfg.ModuleLevels {
		if err := validateLevel(level); err != nil {
			return fmt.Errorf("module_levels.%s: %w", module, err)
		}
	}
	for module, out := range cfg.ModuleOutputs {
		if err := validateLevel(out.Level); err != nil {
			return fmt.Errorf("modules.%s: %w", module, err)
		}
		if out.Enabled && out.FilePath == "" {
			return fmt.Errorf("modules.%s: file_path is required when enabled", module)
		}
	}
	return nil
}
