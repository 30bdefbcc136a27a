package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/layers"
	"github.com/tphakala/imagelens/internal/thermal"
	"github.com/tphakala/imagelens/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

var accelerated = inference.Capabilities{Accelerated: true, Threads: 4, MaxConcurrency: 4}

type fakeAdapter struct {
	layer vision.Layer
	run   func(ctx context.Context, in *layers.Input) (vision.LayerOutput, error)
	calls atomic.Int32
}

func (f *fakeAdapter) Layer() vision.Layer { return f.layer }

func (f *fakeAdapter) Run(ctx context.Context, in *layers.Input) (vision.LayerOutput, error) {
	f.calls.Add(1)
	if f.run != nil {
		return f.run(ctx, in)
	}
	return vision.LayerOutput{Layer: f.layer}, nil
}

type fakes map[vision.Layer]*fakeAdapter

func (f fakes) registry() layers.Registry {
	r := layers.Registry{}
	for l, a := range f {
		r[l] = a
	}
	return r
}

func (f fakes) totalCalls() int32 {
	var n int32
	for _, a := range f {
		n += a.calls.Load()
	}
	return n
}

// newFakes returns one working adapter per layer. Description and
// segmentation echo what they received from upstream layers.
func newFakes() fakes {
	return fakes{
		vision.LayerText: {layer: vision.LayerText, run: func(context.Context, *layers.Input) (vision.LayerOutput, error) {
			return vision.LayerOutput{Layer: vision.LayerText, Text: &vision.TextOutput{
				Blocks: []vision.TextBlock{
					{Text: "Total: $45.00", Confidence: 0.9},
					{Text: "Tax: $3.50", Confidence: 0.8},
				},
				Barcodes: []vision.Barcode{{Payload: "4006381333931", Symbology: "EAN_13"}},
				Document: &vision.DocumentAnalysis{
					Type:       vision.DocumentReceipt,
					Paragraphs: []string{"Total: $45.00 Tax: $3.50"},
				},
			}}, nil
		}},
		vision.LayerObjects: {layer: vision.LayerObjects, run: func(context.Context, *layers.Input) (vision.LayerOutput, error) {
			return vision.LayerOutput{Layer: vision.LayerObjects, Objects: []vision.DetectedObject{
				{ID: "o1", Label: "cat", Confidence: 0.4},
				{ID: "o2", Label: "dog", Confidence: 0.9},
			}}, nil
		}},
		vision.LayerSegmentation: {layer: vision.LayerSegmentation, run: func(_ context.Context, in *layers.Input) (vision.LayerOutput, error) {
			masks := make([]vision.SegmentationMask, 0, len(in.Objects))
			for _, o := range in.Objects {
				masks = append(masks, vision.SegmentationMask{ObjectID: o.ID, AreaFraction: 0.1})
			}
			return vision.LayerOutput{Layer: vision.LayerSegmentation, Masks: masks}, nil
		}},
		vision.LayerDepth: {layer: vision.LayerDepth, run: func(context.Context, *layers.Input) (vision.LayerOutput, error) {
			return vision.LayerOutput{Layer: vision.LayerDepth, Depth: &vision.DepthSummary{Min: 0.1, Max: 0.9, Average: 0.5}}, nil
		}},
		vision.LayerDescription: {layer: vision.LayerDescription, run: func(_ context.Context, in *layers.Input) (vision.LayerOutput, error) {
			desc := vision.EmptyDescription()
			desc.Caption = "An image containing " + in.Objects[1].Label
			desc.SceneTags = []string{"Indoor"}
			desc.Mood = "calm"
			if in.Document != nil {
				desc.SuggestedTags = []string{string(in.Document.Type)}
			}
			return vision.LayerOutput{Layer: vision.LayerDescription, Description: &desc}, nil
		}},
	}
}

func failing(layer vision.Layer, err error) *fakeAdapter {
	return &fakeAdapter{layer: layer, run: func(context.Context, *layers.Input) (vision.LayerOutput, error) {
		return vision.LayerOutput{}, err
	}}
}

func pngBytes(t testing.TB, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestOrchestrator(t *testing.T, f fakes, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock), WithIDGenerator(func() string { return "result-1" })}, opts...)
	o, err := New(f.registry(), accelerated, cfg, opts...)
	require.NoError(t, err)
	return o
}

// memCache mimics the persistent cache by storing encoded results.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	puts    int
}

func newMemCache() *memCache { return &memCache{entries: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, hash string) (*vision.AnalysisResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[hash]
	if !ok {
		return nil, false, nil
	}
	var r vision.AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *memCache) Put(_ context.Context, hash string, r *vision.AnalysisResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = data
	c.puts++
	return nil
}

type recordingMetrics struct {
	noopMetrics
	mu        sync.Mutex
	layerErrs map[vision.Layer]error
	outcomes  []string
	throttled int
}

func (m *recordingMetrics) RecordLayer(l vision.Layer, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layerErrs == nil {
		m.layerErrs = map[vision.Layer]error{}
	}
	m.layerErrs[l] = err
}

func (m *recordingMetrics) RecordRun(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordThrottled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttled++
}

func TestAnalyzeRunsAllLayers(t *testing.T) {
	t.Parallel()

	f := newFakes()
	o := newTestOrchestrator(t, f, DefaultConfig())

	res, err := o.Analyze(t.Context(), pngBytes(t, color.White))
	require.NoError(t, err)

	assert.Equal(t, "result-1", res.ID)
	assert.Len(t, res.ImageHash, 64)
	assert.Equal(t, vision.AllLayers, res.ExecutedLayers.Sorted())
	assert.Zero(t, res.FailedLayers.Len())
	assert.Len(t, res.LayerTimings, len(vision.AllLayers))
	assert.Equal(t, vision.ThermalNominal, res.ThermalState)

	// downstream layers saw Group 1 output
	require.Len(t, res.Masks, 2)
	assert.Equal(t, "o1", res.Masks[0].ObjectID)
	assert.Equal(t, "An image containing dog", res.Description.Caption)
	assert.Equal(t, []string{"receipt"}, res.Description.SuggestedTags)

	assert.Equal(t, []string{"calm", "dog", "indoor", "receipt"}, res.Tags)
	assert.Contains(t, res.SearchableText, "Total: $45.00")
	assert.Contains(t, res.SearchableText, "dog (90%)")
	assert.NotContains(t, res.SearchableText, "cat (40%)")
	assert.Contains(t, res.SearchableText, "4006381333931")

	for _, a := range f {
		assert.EqualValues(t, 1, a.calls.Load(), "layer %s", a.layer)
	}
}

func TestAnalyzePartialFailure(t *testing.T) {
	t.Parallel()

	for _, failed := range vision.AllLayers {
		t.Run(string(failed), func(t *testing.T) {
			t.Parallel()

			f := newFakes()
			if failed == vision.LayerObjects {
				// description indexes objects; keep it from panicking
				f[vision.LayerDescription] = &fakeAdapter{layer: vision.LayerDescription}
			}
			f[failed] = failing(failed, errors.New("boom"))
			o := newTestOrchestrator(t, f, DefaultConfig())

			res, err := o.Analyze(t.Context(), pngBytes(t, color.Black))
			require.NoError(t, err)

			assert.Equal(t, []vision.Layer{failed}, res.FailedLayers.Sorted())
			assert.False(t, res.ExecutedLayers.Has(failed))
			assert.Equal(t, len(vision.AllLayers)-1, res.ExecutedLayers.Len())
			for l := range res.ExecutedLayers {
				assert.False(t, res.FailedLayers.Has(l))
			}
		})
	}
}

func TestAnalyzeFailedLayersKeepDefaults(t *testing.T) {
	t.Parallel()

	f := newFakes()
	f[vision.LayerText] = failing(vision.LayerText, vision.ErrModelLoadFailure)
	f[vision.LayerDepth] = failing(vision.LayerDepth, vision.ErrModelUnavailable)
	metrics := &recordingMetrics{}
	o := newTestOrchestrator(t, f, DefaultConfig(), WithMetrics(metrics))

	res, err := o.Analyze(t.Context(), pngBytes(t, color.Black))
	require.NoError(t, err)

	assert.Empty(t, res.TextBlocks)
	assert.Empty(t, res.Barcodes)
	assert.Nil(t, res.Document)
	assert.Nil(t, res.Depth)
	assert.Equal(t, []vision.Layer{vision.LayerText, vision.LayerDepth}, res.FailedLayers.Sorted())

	assert.ErrorIs(t, metrics.layerErrs[vision.LayerText], vision.ErrModelLoadFailure)
	assert.ErrorIs(t, metrics.layerErrs[vision.LayerDepth], vision.ErrModelUnavailable)
	assert.NoError(t, metrics.layerErrs[vision.LayerObjects])
	assert.Equal(t, []string{"partial"}, metrics.outcomes)
}

func TestAnalyzeRecoversLayerPanic(t *testing.T) {
	t.Parallel()

	f := newFakes()
	f[vision.LayerObjects] = &fakeAdapter{layer: vision.LayerObjects, run: func(context.Context, *layers.Input) (vision.LayerOutput, error) {
		panic("tensor index out of range")
	}}
	f[vision.LayerDescription] = &fakeAdapter{layer: vision.LayerDescription}
	o := newTestOrchestrator(t, f, DefaultConfig())

	res, err := o.Analyze(t.Context(), pngBytes(t, color.Black))
	require.NoError(t, err)
	assert.Equal(t, []vision.Layer{vision.LayerObjects}, res.FailedLayers.Sorted())
}

func TestAnalyzeLayerTimeout(t *testing.T) {
	t.Parallel()

	f := newFakes()
	f[vision.LayerDepth] = &fakeAdapter{layer: vision.LayerDepth, run: func(ctx context.Context, _ *layers.Input) (vision.LayerOutput, error) {
		<-ctx.Done()
		return vision.LayerOutput{}, ctx.Err()
	}}
	metrics := &recordingMetrics{}
	cfg := DefaultConfig()
	cfg.LayerTimeout = 20 * time.Millisecond
	o, err := New(f.registry(), accelerated, cfg, WithMetrics(metrics))
	require.NoError(t, err)

	res, err := o.Analyze(t.Context(), pngBytes(t, color.Black))
	require.NoError(t, err)

	assert.Equal(t, []vision.Layer{vision.LayerDepth}, res.FailedLayers.Sorted())
	assert.ErrorIs(t, metrics.layerErrs[vision.LayerDepth], vision.ErrAnalysisTimeout)
	assert.True(t, res.ExecutedLayers.Has(vision.LayerDescription))
}

func TestAnalyzeCacheIdempotence(t *testing.T) {
	t.Parallel()

	f := newFakes()
	c := newMemCache()
	metrics := &recordingMetrics{}
	o := newTestOrchestrator(t, f, DefaultConfig(), WithCache(c), WithMetrics(metrics))
	data := pngBytes(t, color.RGBA{R: 200, A: 255})

	first, err := o.Analyze(t.Context(), data)
	require.NoError(t, err)
	calls := f.totalCalls()
	assert.EqualValues(t, len(vision.AllLayers), calls)

	second, err := o.Analyze(t.Context(), data)
	require.NoError(t, err)
	assert.Equal(t, calls, f.totalCalls(), "cached run must not invoke layers")
	assert.Equal(t, 1, c.puts)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
	assert.Equal(t, first.ImageHash, second.ImageHash)
	assert.Equal(t, []string{"analyzed", "cached"}, metrics.outcomes)
}

func TestAnalyzeCacheDisabled(t *testing.T) {
	t.Parallel()

	f := newFakes()
	c := newMemCache()
	cfg := DefaultConfig()
	cfg.CacheResults = false
	o := newTestOrchestrator(t, f, cfg, WithCache(c))
	data := pngBytes(t, color.White)

	for range 2 {
		_, err := o.Analyze(t.Context(), data)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2*len(vision.AllLayers), f.totalCalls())
	assert.Zero(t, c.puts)
}

func TestAnalyzeThermalThrottling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		state      vision.ThermalState
		throttling bool
		want       []vision.Layer
	}{
		{"serious throttles", vision.ThermalSerious, true, []vision.Layer{vision.LayerText, vision.LayerDescription}},
		{"critical throttles", vision.ThermalCritical, true, []vision.Layer{vision.LayerText, vision.LayerDescription}},
		{"fair runs everything", vision.ThermalFair, true, vision.AllLayers},
		{"throttling disabled", vision.ThermalCritical, false, vision.AllLayers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakes()
			// description runs without objects when throttled
			f[vision.LayerDescription] = &fakeAdapter{layer: vision.LayerDescription}
			cfg := DefaultConfig()
			cfg.ThermalThrottling = tt.throttling
			metrics := &recordingMetrics{}
			o := newTestOrchestrator(t, f, cfg, WithThermal(thermal.Static(tt.state)), WithMetrics(metrics))

			res, err := o.Analyze(t.Context(), pngBytes(t, color.White))
			require.NoError(t, err)

			assert.Equal(t, tt.want, res.ExecutedLayers.Sorted())
			assert.Equal(t, tt.state, res.ThermalState)
			if len(tt.want) < len(vision.AllLayers) {
				assert.Zero(t, f[vision.LayerObjects].calls.Load())
				assert.Equal(t, 1, metrics.throttled)
			}
			// the throttled set applies to one run only
			assert.Equal(t, len(vision.AllLayers), o.Config().EnabledLayers.Len())
		})
	}
}

func TestAnalyzeInvalidImage(t *testing.T) {
	t.Parallel()

	f := newFakes()
	o := newTestOrchestrator(t, f, DefaultConfig())

	for _, data := range [][]byte{nil, []byte("definitely not an image")} {
		res, err := o.Analyze(t.Context(), data)
		require.ErrorIs(t, err, vision.ErrInvalidImage)
		assert.Nil(t, res)
	}
	assert.Zero(t, f.totalCalls())
}

func TestNoLayersEnabled(t *testing.T) {
	t.Parallel()

	_, err := New(layers.Registry{}, accelerated, DefaultConfig())
	require.ErrorIs(t, err, vision.ErrNoLayersEnabled)

	f := newFakes()
	o := newTestOrchestrator(t, f, DefaultConfig())

	empty := DefaultConfig()
	empty.EnabledLayers = vision.LayerSet{}
	_, err = o.Analyze(t.Context(), pngBytes(t, color.White), WithConfigOverride(empty))
	require.ErrorIs(t, err, vision.ErrNoLayersEnabled)
	assert.Zero(t, f.totalCalls())

	require.ErrorIs(t, o.SetConfig(empty), vision.ErrNoLayersEnabled)
	assert.Equal(t, len(vision.AllLayers), o.Config().EnabledLayers.Len(), "failed SetConfig keeps the old config")
}

func TestAnalyzeConfigOverride(t *testing.T) {
	t.Parallel()

	f := newFakes()
	o := newTestOrchestrator(t, f, DefaultConfig())

	override := DefaultConfig()
	override.EnabledLayers = vision.NewLayerSet(vision.LayerText)
	res, err := o.Analyze(t.Context(), pngBytes(t, color.White), WithConfigOverride(override))
	require.NoError(t, err)

	assert.Equal(t, []vision.Layer{vision.LayerText}, res.ExecutedLayers.Sorted())
	assert.True(t, res.Description.IsEmpty())
	assert.Equal(t, "receipt", res.Tags[0])
}

func TestAnalyzeProgress(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []Progress
	)
	f := newFakes()
	o := newTestOrchestrator(t, f, DefaultConfig(), WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p)
	}))
	sub, cancel := o.Subscribe()
	defer cancel()

	_, err := o.Analyze(t.Context(), pngBytes(t, color.White))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, len(vision.AllLayers))
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Fraction, events[i-1].Fraction)
		assert.Equal(t, i+1, events[i].Completed)
	}
	last := events[len(events)-1]
	assert.InDelta(t, 1.0, last.Fraction, 1e-9)
	assert.Equal(t, vision.LayerDescription, last.CurrentLayer)

	// groups 2 and 3 land in fixed order
	assert.Equal(t, vision.LayerSegmentation, events[2].CurrentLayer)
	assert.Equal(t, vision.LayerDepth, events[3].CurrentLayer)

	assert.Len(t, sub, len(vision.AllLayers))
}

func TestSubscribeCancel(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, newFakes(), DefaultConfig())
	sub, cancel := o.Subscribe()
	cancel()
	cancel()

	_, open := <-sub
	assert.False(t, open)

	// publishing after cancel must not panic
	_, err := o.Analyze(t.Context(), pngBytes(t, color.White))
	require.NoError(t, err)
}

type fakeEmbedder struct {
	vec []float32
	err error
	got []string
	mu  sync.Mutex
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, text)
	return e.vec, e.err
}

func TestAnalyzeEmbedding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		embedder *fakeEmbedder
		want     []float32
	}{
		{"attached", &fakeEmbedder{vec: []float32{0.1, 0.2}}, []float32{0.1, 0.2}},
		{"service error", &fakeEmbedder{err: errors.New("connection refused")}, nil},
		{"empty vector", &fakeEmbedder{vec: []float32{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.GenerateEmbeddings = true
			o := newTestOrchestrator(t, newFakes(), cfg, WithEmbedder(tt.embedder))

			res, err := o.Analyze(t.Context(), pngBytes(t, color.White))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Embedding)
			assert.Zero(t, res.FailedLayers.Len())
			require.Len(t, tt.embedder.got, 1)
			assert.Equal(t, res.SearchableText, tt.embedder.got[0])
		})
	}
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*vision.AnalysisResult
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, r *vision.AnalysisResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r)
	return p.err
}

func TestAnalyzePublishes(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("broker down")}
	o := newTestOrchestrator(t, newFakes(), DefaultConfig(), WithPublisher(pub))

	res, err := o.Analyze(t.Context(), pngBytes(t, color.White))
	require.NoError(t, err, "publish failures are not fatal")
	require.Len(t, pub.published, 1)
	assert.Equal(t, res.ID, pub.published[0].ID)
}

func TestAnalyzeConcurrentSameImage(t *testing.T) {
	t.Parallel()

	c := newMemCache()
	o := newTestOrchestrator(t, newFakes(), DefaultConfig(), WithCache(c))
	data := pngBytes(t, color.Gray{Y: 90})

	var wg sync.WaitGroup
	results := make([]*vision.AnalysisResult, 8)
	for i := range results {
		wg.Go(func() {
			res, err := o.Analyze(context.Background(), data)
			assert.NoError(t, err)
			results[i] = res
		})
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].ImageHash, r.ImageHash)
	}
	assert.Len(t, c.entries, 1)
}

// gatedCache signals every lookup so a test can tell when a caller is about
// to join an in-flight run.
type gatedCache struct {
	*memCache
	gets chan struct{}
}

func (c *gatedCache) Get(ctx context.Context, hash string) (*vision.AnalysisResult, bool, error) {
	c.gets <- struct{}{}
	return c.memCache.Get(ctx, hash)
}

func TestAnalyzeSharedRunSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	f := newFakes()
	f[vision.LayerText] = &fakeAdapter{layer: vision.LayerText, run: func(ctx context.Context, _ *layers.Input) (vision.LayerOutput, error) {
		started <- struct{}{}
		select {
		case <-release:
			return vision.LayerOutput{Layer: vision.LayerText}, nil
		case <-ctx.Done():
			return vision.LayerOutput{}, ctx.Err()
		}
	}}
	c := &gatedCache{memCache: newMemCache(), gets: make(chan struct{}, 2)}
	o := newTestOrchestrator(t, f, DefaultConfig(), WithCache(c))
	data := pngBytes(t, color.Gray{Y: 40})

	ctxA, cancelA := context.WithCancel(t.Context())
	errA := make(chan error, 1)
	go func() {
		_, err := o.Analyze(ctxA, data)
		errA <- err
	}()
	<-c.gets
	<-started

	type reply struct {
		res *vision.AnalysisResult
		err error
	}
	replyB := make(chan reply, 1)
	go func() {
		res, err := o.Analyze(t.Context(), data)
		replyB <- reply{res, err}
	}()
	<-c.gets
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-replyB
	require.NoError(t, b.err)
	assert.Zero(t, b.res.FailedLayers.Len())
	assert.Equal(t, vision.AllLayers, b.res.ExecutedLayers.Sorted())
	assert.EqualValues(t, 1, f[vision.LayerText].calls.Load())
}

func TestAnalyzeThrottledWithoutAcceleration(t *testing.T) {
	t.Parallel()

	f := newFakes()
	f[vision.LayerDescription] = &fakeAdapter{layer: vision.LayerDescription}
	cfg := DefaultConfig()
	cfg.ThermalThrottling = true
	o, err := New(f.registry(), inference.Capabilities{Threads: 2}, cfg,
		WithThermal(thermal.Static(vision.ThermalCritical)))
	require.NoError(t, err)

	assert.Equal(t, []vision.Layer{vision.LayerText, vision.LayerDescription}, o.Config().EnabledLayers.Sorted())

	res, err := o.Analyze(t.Context(), pngBytes(t, color.White))
	require.NoError(t, err)
	assert.Equal(t, []vision.Layer{vision.LayerText, vision.LayerDescription}, res.ExecutedLayers.Sorted())
	assert.Zero(t, f[vision.LayerObjects].calls.Load())
}
