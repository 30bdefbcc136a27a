// Package pipeline runs the analysis layers over one image and merges their
// outputs into a single AnalysisResult.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/layers"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/observability/metrics"
	"github.com/tphakala/imagelens/internal/thermal"
	"github.com/tphakala/imagelens/internal/vision"
)

// Execution groups. Groups run one after another; only the first fans out.
var (
	parallelGroup    = []vision.Layer{vision.LayerText, vision.LayerObjects}
	acceleratorGroup = []vision.Layer{vision.LayerSegmentation, vision.LayerDepth}
	synthesisGroup   = []vision.Layer{vision.LayerDescription}
)

// ResultCache stores finished results by content hash. *cache.Cache satisfies it.
type ResultCache interface {
	Get(ctx context.Context, hash string) (*vision.AnalysisResult, bool, error)
	Put(ctx context.Context, hash string, result *vision.AnalysisResult) error
}

// Embedder turns searchable text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Publisher announces finished results.
type Publisher interface {
	Publish(ctx context.Context, result *vision.AnalysisResult) error
}

// Metrics receives run and layer measurements. *metrics.PipelineMetrics
// satisfies it.
type Metrics interface {
	RecordLayer(layer vision.Layer, took time.Duration, err error)
	RecordRun(outcome string, took time.Duration)
	RecordThrottled()
	RunStarted()
	RunFinished()
	RecordEmbedding(err error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables the result cache.
func WithCache(c ResultCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithThermal sets the thermal sampler. Without one every run is nominal.
func WithThermal(s thermal.Sampler) Option {
	return func(o *Orchestrator) { o.thermal = s }
}

// WithEmbedder sets the embedding service client.
func WithEmbedder(e Embedder) Option {
	return func(o *Orchestrator) { o.embedder = e }
}

// WithMetrics records measurements into m.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPublisher announces every finished run through p.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithProgress calls fn after each layer lands. fn runs on the orchestrating
// goroutine and must not block.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides result id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// AnalyzeOption adjusts a single Analyze call.
type AnalyzeOption func(*analyzeParams)

type analyzeParams struct {
	override   *Config
	capturedAt time.Time
}

// WithConfigOverride runs the call with cfg instead of the orchestrator
// configuration. cfg is negotiated against the host like any other.
func WithConfigOverride(cfg Config) AnalyzeOption {
	return func(p *analyzeParams) {
		c := cfg.Clone()
		p.override = &c
	}
}

// WithCapturedAt passes the capture time to layers that use it.
func WithCapturedAt(t time.Time) AnalyzeOption {
	return func(p *analyzeParams) { p.capturedAt = t }
}

// Orchestrator schedules layer adapters and assembles results.
type Orchestrator struct {
	registry  layers.Registry
	caps      inference.Capabilities
	available vision.LayerSet

	mu        sync.RWMutex
	requested Config
	effective Config

	cache      ResultCache
	thermal    thermal.Sampler
	embedder   Embedder
	publisher  Publisher
	metrics    Metrics
	onProgress func(Progress)
	now        func() time.Time
	newID      func() string

	progress broadcaster
	flight   singleflight.Group
}

// New negotiates cfg against caps and the registered adapters. It fails with
// vision.ErrNoLayersEnabled when nothing can run on this host.
func New(registry layers.Registry, caps inference.Capabilities, cfg Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		registry:  registry,
		caps:      caps,
		available: registry.Available(),
		thermal:   thermal.Static(vision.ThermalNominal),
		metrics:   noopMetrics{},
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.SetConfig(cfg); err != nil {
		return nil, err
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.effective.Clone()
}

// RequestedConfig returns the configuration before negotiation.
func (o *Orchestrator) RequestedConfig() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.requested.Clone()
}

// SetConfig replaces the configuration. On error the previous one stays.
func (o *Orchestrator) SetConfig(cfg Config) error {
	effective, err := Negotiate(cfg, o.caps, o.available)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.requested = cfg.Clone()
	o.effective = effective
	o.mu.Unlock()

	GetLogger().Info("pipeline configured",
		logger.Strings("requested", cfg.EnabledLayers.Names()),
		logger.Strings("effective", effective.EnabledLayers.Names()),
		logger.Int("max_concurrent_layers", effective.MaxConcurrentLayers),
		logger.Bool("accelerated", o.caps.Accelerated))
	return nil
}

// Subscribe returns a channel of progress events from every run. Events are
// dropped for subscribers that fall behind. cancel closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Progress, func()) {
	return o.progress.subscribe()
}

// Analyze runs the enabled layers over data. Besides the caller's context
// error, only vision.ErrNoLayersEnabled and vision.ErrInvalidImage are
// returned; layer failures are recorded in the result. Concurrent calls for
// the same image and layers share one run, which keeps going when the caller
// that started it goes away.
func (o *Orchestrator) Analyze(ctx context.Context, data []byte, opts ...AnalyzeOption) (*vision.AnalysisResult, error) {
	var params analyzeParams
	for _, opt := range opts {
		opt(&params)
	}

	start := o.now()
	o.metrics.RunStarted()
	defer o.metrics.RunFinished()

	cfg := o.Config()
	if params.override != nil {
		negotiated, err := Negotiate(*params.override, o.caps, o.available)
		if err != nil {
			o.metrics.RecordRun(metrics.OutcomeNoLayers, o.now().Sub(start))
			return nil, err
		}
		cfg = negotiated
	}

	hash := imageutil.ContentHash(data)

	if cfg.CacheResults && o.cache != nil {
		cached, ok, err := o.cache.Get(ctx, hash)
		switch {
		case err != nil:
			GetLogger().Warn("cache lookup failed",
				logger.String("image_hash", hash),
				logger.Error(err))
		case ok:
			GetLogger().Debug("cache hit", logger.String("image_hash", hash))
			o.metrics.RecordRun(metrics.OutcomeCached, o.now().Sub(start))
			return cached, nil
		}
	}

	// The shared run outlives any single caller; layer timeouts bound it.
	key := hash + "|" + strings.Join(cfg.EnabledLayers.Names(), ",")
	runCtx := context.WithoutCancel(ctx)
	flight := o.flight.DoChan(key, func() (any, error) {
		return o.run(runCtx, data, hash, cfg, params, start)
	})

	select {
	case <-ctx.Done():
		GetLogger().Debug("caller left in-flight analysis",
			logger.String("image_hash", hash),
			logger.Error(ctx.Err()))
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			GetLogger().Debug("joined in-flight analysis", logger.String("image_hash", hash))
		}
		return res.Val.(*vision.AnalysisResult), nil
	}
}

func (o *Orchestrator) run(ctx context.Context, data []byte, hash string, cfg Config, params analyzeParams, start time.Time) (*vision.AnalysisResult, error) {
	img, err := imageutil.Decode(data)
	if err != nil {
		o.metrics.RecordRun(metrics.OutcomeInvalidImage, o.now().Sub(start))
		return nil, err
	}

	state := o.thermal.Sample(ctx)
	if cfg.ThermalThrottling && state >= vision.ThermalSerious {
		throttled, err := Negotiate(cfg.Throttled(), o.caps, o.available)
		if err != nil {
			o.metrics.RecordRun(metrics.OutcomeNoLayers, o.now().Sub(start))
			return nil, err
		}
		GetLogger().Info("thermal throttling active",
			logger.String("thermal_state", state.String()),
			logger.String("image_hash", hash),
			logger.Strings("layers", throttled.EnabledLayers.Names()))
		o.metrics.RecordThrottled()
		cfg = throttled
	}

	result := vision.NewAnalysisResult(o.newID(), hash, start)
	result.ThermalState = state

	in := &layers.Input{Image: img, CapturedAt: params.capturedAt}
	track := &tracker{hash: hash, total: cfg.EnabledLayers.Len(), emit: o.emitProgress}

	// Group 1 fans out; outcomes merge here in completion order.
	result = o.runParallel(ctx, cfg, enabled(cfg, parallelGroup), in, result, track)

	in.Objects = result.Objects
	in.TextBlocks = result.TextBlocks
	in.Document = result.Document

	// Groups 2 and 3 share the accelerator and run one layer at a time.
	for _, l := range enabled(cfg, acceleratorGroup) {
		result = o.merge(result, o.runLayer(ctx, cfg, l, in), track)
	}
	for _, l := range enabled(cfg, synthesisGroup) {
		result = o.merge(result, o.runLayer(ctx, cfg, l, in), track)
	}

	result = result.WithDerived(deriveSearchable(&result), deriveTags(&result))

	if cfg.GenerateEmbeddings && o.embedder != nil {
		result = o.attachEmbedding(ctx, result)
	}

	result.ProcessingTime = o.now().Sub(start)

	if cfg.CacheResults && o.cache != nil {
		if err := o.cache.Put(ctx, hash, &result); err != nil {
			GetLogger().Warn("failed to cache analysis result",
				logger.String("image_hash", hash),
				logger.Error(err))
		}
	}

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, &result); err != nil {
			GetLogger().Warn("failed to publish analysis result",
				logger.String("image_hash", hash),
				logger.Error(err))
		}
	}

	outcome := metrics.OutcomeAnalyzed
	if result.FailedLayers.Len() > 0 {
		outcome = metrics.OutcomePartial
	}
	o.metrics.RecordRun(outcome, result.ProcessingTime)

	GetLogger().Info("analysis complete",
		logger.String("id", result.ID),
		logger.String("image_hash", hash),
		logger.Strings("executed", result.ExecutedLayers.Names()),
		logger.Strings("failed", result.FailedLayers.Names()),
		logger.Duration("took", result.ProcessingTime))

	return &result, nil
}

// runParallel runs group concurrently, bounded by MaxConcurrentLayers. A
// failure in one layer never cancels the others.
func (o *Orchestrator) runParallel(ctx context.Context, cfg Config, group []vision.Layer, in *layers.Input, result vision.AnalysisResult, track *tracker) vision.AnalysisResult {
	if len(group) == 0 {
		return result
	}

	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrentLayers))
	outcomes := make(chan layerOutcome, len(group))

	var wg sync.WaitGroup
	for _, l := range group {
		wg.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes <- o.failed(l, in.Image.Hash, 0, err)
				return
			}
			defer sem.Release(1)
			outcomes <- o.runLayer(ctx, cfg, l, in)
		})
	}

	for range group {
		result = o.merge(result, <-outcomes, track)
	}
	wg.Wait()
	return result
}

type layerOutcome struct {
	layer  vision.Layer
	output vision.LayerOutput
	took   time.Duration
	err    error
}

type adapterReply struct {
	output vision.LayerOutput
	err    error
}

// runLayer calls one adapter under the per-layer timeout. Panics and missing
// adapters become layer failures.
func (o *Orchestrator) runLayer(ctx context.Context, cfg Config, layer vision.Layer, in *layers.Input) layerOutcome {
	adapter, ok := o.registry[layer]
	if !ok {
		return o.failed(layer, in.Image.Hash, 0, fmt.Errorf("%w: no adapter registered", vision.ErrModelUnavailable))
	}

	layerCtx := ctx
	if cfg.LayerTimeout > 0 {
		var cancel context.CancelFunc
		layerCtx, cancel = context.WithTimeout(ctx, cfg.LayerTimeout)
		defer cancel()
	}

	start := o.now()
	replies := make(chan adapterReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				GetLogger().Error("layer panicked",
					logger.String("layer", layer.String()),
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())))
				replies <- adapterReply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := adapter.Run(layerCtx, in)
		replies <- adapterReply{output: out, err: err}
	}()

	var reply adapterReply
	select {
	case reply = <-replies:
	case <-layerCtx.Done():
		reply.err = layerCtx.Err()
	}
	took := o.now().Sub(start)

	if reply.err != nil {
		if errors.Is(layerCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			reply.err = errors.New(vision.ErrAnalysisTimeout).
				Component("pipeline").
				Category(errors.CategoryTimeout).
				Context("layer", layer.String()).
				Timing("layer_timeout", cfg.LayerTimeout).
				Build()
		}
		return o.failed(layer, in.Image.Hash, took, reply.err)
	}

	o.metrics.RecordLayer(layer, took, nil)
	return layerOutcome{layer: layer, output: reply.output, took: took}
}

func (o *Orchestrator) failed(layer vision.Layer, hash string, took time.Duration, cause error) layerOutcome {
	err := &vision.LayerError{Layer: layer, Cause: cause}
	GetLogger().Warn("layer failed",
		logger.String("layer", layer.String()),
		logger.String("image_hash", hash),
		logger.Duration("took", took),
		logger.Error(err))
	o.metrics.RecordLayer(layer, took, cause)
	return layerOutcome{layer: layer, took: took, err: err}
}

// merge folds one outcome into result and reports progress.
func (o *Orchestrator) merge(result vision.AnalysisResult, out layerOutcome, track *tracker) vision.AnalysisResult {
	if out.err != nil {
		result = result.WithLayerFailed(out.layer, out.took)
		track.landed(out.layer, true)
		return result
	}

	result = apply(result, out.output).WithLayerExecuted(out.layer, out.took)
	track.landed(out.layer, false)
	return result
}

// apply copies the payload of out into result.
func apply(result vision.AnalysisResult, out vision.LayerOutput) vision.AnalysisResult {
	switch out.Layer {
	case vision.LayerText:
		if out.Text != nil {
			result = result.WithText(out.Text.Blocks, out.Text.Barcodes, out.Text.Document)
		}
	case vision.LayerObjects:
		result = result.WithObjects(out.Objects)
	case vision.LayerSegmentation:
		result = result.WithMasks(out.Masks)
	case vision.LayerDepth:
		result = result.WithDepth(out.Depth)
	case vision.LayerDescription:
		if out.Description != nil {
			result = result.WithDescription(*out.Description)
		}
	}
	return result
}

// attachEmbedding adds the embedding vector. Failures and empty vectors leave
// the field unset.
func (o *Orchestrator) attachEmbedding(ctx context.Context, result vision.AnalysisResult) vision.AnalysisResult {
	if strings.TrimSpace(result.SearchableText) == "" {
		return result
	}
	vec, err := o.embedder.Embed(ctx, result.SearchableText)
	o.metrics.RecordEmbedding(err)
	if err != nil {
		GetLogger().Warn("embedding generation failed",
			logger.String("image_hash", result.ImageHash),
			logger.Error(err))
		return result
	}
	if len(vec) == 0 {
		return result
	}
	return result.WithEmbedding(vec)
}

func (o *Orchestrator) emitProgress(p Progress) {
	if o.onProgress != nil {
		o.onProgress(p)
	}
	o.progress.publish(p)
}

// enabled returns the members of group present in cfg, in group order.
func enabled(cfg Config, group []vision.Layer) []vision.Layer {
	out := make([]vision.Layer, 0, len(group))
	for _, l := range group {
		if cfg.EnabledLayers.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

type noopMetrics struct{}

func (noopMetrics) RecordLayer(vision.Layer, time.Duration, error) {}
func (noopMetrics) RecordRun(string, time.Duration)                {}
func (noopMetrics) RecordThrottled()                               {}
func (noopMetrics) RunStarted()                                    {}
func (noopMetrics) RunFinished()                                   {}
func (noopMetrics) RecordEmbedding(error)                          {}
