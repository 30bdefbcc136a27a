package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/imagelens/internal/api/middleware"
	"github.com/tphakala/imagelens/internal/cache"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/observability"
	"github.com/tphakala/imagelens/internal/pipeline"
	"github.com/tphakala/imagelens/internal/vision"
)

// Analyzer runs the pipeline. *pipeline.Orchestrator satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, opts ...pipeline.AnalyzeOption) (*vision.AnalysisResult, error)
	Config() pipeline.Config
	RequestedConfig() pipeline.Config
	SetConfig(cfg pipeline.Config) error
	Subscribe() (<-chan pipeline.Progress, func())
}

// CacheAdmin exposes cache maintenance. *cache.Cache satisfies it.
type CacheAdmin interface {
	Stats(ctx context.Context) (cache.Stats, error)
	Clear(ctx context.Context) error
	Remove(ctx context.Context, hash string) error
	LookupByResultID(ctx context.Context, id string) (*vision.AnalysisResult, bool, error)
}

// Server is the HTTP server for imagelens.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	// Dependencies
	analyzer    Analyzer
	cache       CacheAdmin
	preferences pipeline.PreferenceStore
	metrics     *observability.Metrics

	// Lifecycle management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithCache enables the cache maintenance endpoints.
func WithCache(c CacheAdmin) ServerOption {
	return func(s *Server) {
		s.cache = c
	}
}

// WithPreferences persists configuration changes made over the API.
func WithPreferences(p pipeline.PreferenceStore) ServerOption {
	return func(s *Server) {
		s.preferences = p
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithConfig overrides the configuration derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) {
		s.config = cfg
	}
}

// New creates a new HTTP server serving analyzer.
func New(settings *conf.Settings, analyzer Analyzer, opts ...ServerOption) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:    ConfigFromSettings(settings),
		settings:  settings,
		log:       GetLogger(),
		analyzer:  analyzer,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("address", s.config.Listen),
		logger.Bool("metrics", s.config.ExposeMetrics),
		logger.Int64("max_upload_size", s.config.MaxUploadSize))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	}))

	s.echo.Use(mw.NewCORS(s.config.AllowedOrigins))
	s.echo.Use(mw.NewSecureHeaders())
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.config.ExposeMetrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.analyze)
	v1.GET("/progress", s.progressStream)
	v1.GET("/config", s.getConfig)
	v1.PUT("/config", s.putConfig)

	v1.GET("/cache/stats", s.cacheStats)
	v1.DELETE("/cache", s.clearCache)
	v1.DELETE("/cache/:hash", s.removeCacheEntry)
	v1.GET("/results/:id", s.getResult)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"layers":         s.analyzer.Config().EnabledLayers.Names(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start serves HTTP requests in a background goroutine and returns
// immediately. Use Shutdown to stop the server.
func (s *Server) Start() {
	s.wg.Go(func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.Error(err))
		}
	})
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.wg.Wait()
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
