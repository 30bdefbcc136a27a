// Package api serves the analysis pipeline over HTTP.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultListen          = ":8080"
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute // analysis of a large image can be slow
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxUploadSize   = 20 << 20
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port

	AllowedOrigins []string // CORS allowed origins, empty disables CORS

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxUploadSize caps the request body of analyze calls, in bytes
	MaxUploadSize int64

	// ExposeMetrics serves the Prometheus registry at /metrics
	ExposeMetrics bool

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxUploadSize:   DefaultMaxUploadSize,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	if settings.WebServer.MaxUploadSize > 0 {
		cfg.MaxUploadSize = settings.WebServer.MaxUploadSize
	}
	cfg.AllowedOrigins = settings.WebServer.AllowedOrigins
	cfg.ExposeMetrics = settings.Telemetry.Prometheus
	cfg.Debug = settings.Main.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, max_upload=%d, metrics=%v, debug=%v",
		c.Listen, c.MaxUploadSize, c.ExposeMetrics, c.Debug)
}
