package analysis

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/tphakala/imagelens/internal/api"
	"github.com/tphakala/imagelens/internal/logger"
)

// Serve runs the HTTP API on rt until ctx is cancelled or the process
// receives SIGINT or SIGTERM.
func Serve(ctx context.Context, rt *Runtime) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := api.New(rt.Settings, rt.Pipeline,
		api.WithCache(rt.Cache),
		api.WithPreferences(rt.Preferences),
		api.WithMetrics(rt.Metrics),
	)
	if err != nil {
		return err
	}

	cfg := rt.Pipeline.Config()
	GetLogger().Info("image analysis service starting",
		logger.String("listen", rt.Settings.WebServer.Listen),
		logger.Strings("layers", cfg.EnabledLayers.Names()),
		logger.Int("max_concurrent_layers", cfg.MaxConcurrentLayers),
		logger.String("database", rt.Store.Path()))

	server.Start()
	<-ctx.Done()

	GetLogger().Info("shutdown signal received")
	return server.Shutdown()
}
