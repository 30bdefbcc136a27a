// Package analysis assembles the pipeline and its collaborators from
// settings and runs them in one-shot file mode or as the HTTP service.
package analysis

import (
	"context"

	"github.com/tphakala/imagelens/internal/cache"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/datastore"
	"github.com/tphakala/imagelens/internal/embedding"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/layers"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/mqtt"
	"github.com/tphakala/imagelens/internal/observability"
	"github.com/tphakala/imagelens/internal/pipeline"
	"github.com/tphakala/imagelens/internal/thermal"
)

// Runtime owns every long-lived resource behind the pipeline.
type Runtime struct {
	Settings    *conf.Settings
	Store       datastore.Manager
	Cache       *cache.Cache
	Preferences *datastore.Preferences
	Metrics     *observability.Metrics
	Pipeline    *pipeline.Orchestrator

	closers []func()
}

// RuntimeOption overrides parts of the assembly.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	registry layers.Registry
	caps     *inference.Capabilities
	thermal  thermal.Sampler
}

// WithRegistry uses registry and caps instead of probing the host and
// loading models from settings.
func WithRegistry(registry layers.Registry, caps inference.Capabilities) RuntimeOption {
	return func(o *runtimeOptions) {
		o.registry = registry
		o.caps = &caps
	}
}

// WithThermalSampler replaces the host sensor sampler.
func WithThermalSampler(s thermal.Sampler) RuntimeOption {
	return func(o *runtimeOptions) {
		o.thermal = s
	}
}

// NewRuntime opens the datastore, the result cache and the preferences,
// then builds the orchestrator. The configuration stored in preferences wins
// over the pipeline section of settings.
func NewRuntime(ctx context.Context, settings *conf.Settings, opts ...RuntimeOption) (*Runtime, error) {
	o := runtimeOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{Settings: settings}
	if err := rt.build(ctx, &o); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, o *runtimeOptions) error {
	settings := rt.Settings
	log := GetLogger()

	var err error
	if rt.Metrics, err = observability.NewMetrics(); err != nil {
		return err
	}

	if rt.Store, err = datastore.Open(settings); err != nil {
		return err
	}
	store := rt.Store
	rt.closers = append(rt.closers, func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close database", logger.Error(err))
		}
	})

	rt.Cache, err = cache.New(ctx, rt.Store, cache.Options{
		MaxEntries: settings.Cache.MaxEntries,
		MaxAge:     settings.Cache.MaxAge,
		MemoryTTL:  settings.Cache.MemoryTTL,
		Observer:   rt.Metrics.Cache,
	})
	if err != nil {
		return err
	}

	if rt.Preferences, err = datastore.NewPreferences(rt.Store); err != nil {
		return err
	}

	fallback := pipeline.FromSettings(&settings.Pipeline)
	cfg, loadErr := pipeline.LoadConfig(rt.Preferences, fallback)
	if loadErr != nil {
		log.Warn("failed to read stored pipeline configuration, using settings", logger.Error(loadErr))
		cfg = fallback
	}

	registry, caps := o.registry, o.caps
	if registry == nil {
		probed := inference.Probe(settings.Models.UseXNNPACK)
		log.Info("capability probe",
			logger.Bool("accelerated", probed.Accelerated),
			logger.Strings("simd", probed.SIMD),
			logger.Int("threads", probed.Threads),
			logger.Int("max_concurrency", probed.MaxConcurrency),
			logger.String("reason", probed.Reason))
		var closeLayers func()
		registry, closeLayers = layers.NewFromSettings(settings, probed)
		rt.closers = append(rt.closers, closeLayers)
		caps = &probed
	}

	sampler := o.thermal
	if sampler == nil {
		sampler = thermal.NewHostSampler()
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithCache(rt.Cache),
		pipeline.WithThermal(sampler),
		pipeline.WithMetrics(rt.Metrics.Pipeline),
	}

	if settings.Embedding.URL != "" {
		embedder, embErr := embedding.NewClient(embedding.Options{
			URL:       settings.Embedding.URL,
			Model:     settings.Embedding.Model,
			RateLimit: settings.Embedding.RateLimit,
			Timeout:   settings.Embedding.Timeout,
		})
		if embErr != nil {
			log.Warn("embedding service disabled", logger.Error(embErr))
		} else {
			pipelineOpts = append(pipelineOpts, pipeline.WithEmbedder(embedder))
		}
	}

	if settings.MQTT.Enabled {
		client, mqttErr := mqtt.NewClient(settings, rt.Metrics.MQTT)
		if mqttErr != nil {
			log.Warn("result publishing disabled", logger.Error(mqttErr))
		} else {
			publisher := mqtt.NewResultPublisher(client, settings.MQTT.Topic)
			rt.closers = append(rt.closers, publisher.Close)
			pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(publisher))
		}
	}

	rt.Pipeline, err = pipeline.New(registry, *caps, cfg, pipelineOpts...)
	return err
}

// Close releases resources in reverse order of acquisition. It is safe to
// call on a partially built runtime.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
