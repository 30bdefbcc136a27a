package vision

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayerSetDropsUnknown(t *testing.T) {
	t.Parallel()

	set := ParseLayerSet([]string{"textRecognition", "ocr", "depthEstimation", ""})
	assert.Equal(t, []Layer{LayerText, LayerDepth}, set.Sorted())
}

func TestLayerSetJSONIsSortedAndStrict(t *testing.T) {
	t.Parallel()

	set := NewLayerSet(LayerDescription, LayerText, LayerObjects)
	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["textRecognition","objectDetection","description"]`, string(data))

	var decoded LayerSet
	require.NoError(t, json.Unmarshal([]byte(`["segmentation","bogus"]`), &decoded))
	assert.Equal(t, NewLayerSet(LayerSegmentation), decoded)
}

func TestBoundingBoxIntersection(t *testing.T) {
	t.Parallel()

	a := BoundingBox{X: 0, Y: 0, Width: 0.5, Height: 0.5}
	b := BoundingBox{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}
	c := BoundingBox{X: 0.6, Y: 0.6, Width: 0.1, Height: 0.1}

	assert.InDelta(t, 0.0625, a.Intersection(b), 1e-9)
	assert.Zero(t, a.Intersection(c))
	assert.Equal(t, BoundingBox{X: 0, Y: 0, Width: 0.75, Height: 0.75}, a.Union(b))
}

func TestClampKeepsBoxInsideUnitSquare(t *testing.T) {
	t.Parallel()

	got := BoundingBox{X: -0.1, Y: 0.9, Width: 0.3, Height: 0.3}.Clamp()
	assert.InDelta(t, 0, got.X, 1e-9)
	assert.InDelta(t, 0.2, got.Width, 1e-9)
	assert.InDelta(t, 0.1, got.Height, 1e-9)
}

func TestCopyOnWriteHelpersDoNotMutateOriginal(t *testing.T) {
	t.Parallel()

	base := NewAnalysisResult("id", "hash", time.Unix(0, 0))
	next := base.WithLayerExecuted(LayerText, time.Millisecond)
	failed := next.WithLayerFailed(LayerObjects, 2*time.Millisecond)

	assert.Zero(t, base.ExecutedLayers.Len())
	assert.Equal(t, 1, next.ExecutedLayers.Len())
	assert.Zero(t, next.FailedLayers.Len())
	assert.True(t, failed.FailedLayers.Has(LayerObjects))
	assert.Len(t, next.LayerTimings, 1)
	assert.Len(t, failed.LayerTimings, 2)
}

func TestExecutedAndFailedStayDisjoint(t *testing.T) {
	t.Parallel()

	r := NewAnalysisResult("id", "hash", time.Now()).
		WithLayerFailed(LayerDepth, 0).
		WithLayerExecuted(LayerDepth, 0)

	assert.True(t, r.ExecutedLayers.Has(LayerDepth))
	assert.False(t, r.FailedLayers.Has(LayerDepth))
}

func TestThermalStateJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ThermalSerious)
	require.NoError(t, err)
	assert.JSONEq(t, `"serious"`, string(data))

	var st ThermalState
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &st))
	assert.Equal(t, ThermalCritical, st)
	assert.Greater(t, ThermalCritical, ThermalSerious)
}

func TestGenerateAIContextOrderAndOmissions(t *testing.T) {
	t.Parallel()

	r := NewAnalysisResult("id", "hash", time.Now()).
		WithObjects([]DetectedObject{
			{Label: "cup", Confidence: 0.5},
			{Label: "laptop", Confidence: 0.9},
		}).
		WithText([]TextBlock{{Text: "Quarterly report"}}, nil, &DocumentAnalysis{Type: DocumentArticle}).
		WithDepth(&DepthSummary{Min: 0.1, Max: 0.9, Average: 0.4}).
		WithLayerFailed(LayerSegmentation, 0)
	desc := EmptyDescription()
	desc.Caption = "An image containing laptop, cup"
	desc.SceneTags = []string{"indoor", "office"}
	r = r.WithDescription(desc)

	lines := strings.Split(r.GenerateAIContext(), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Image description: An image containing laptop, cup", lines[0])
	assert.Equal(t, "Detected objects: laptop, cup", lines[1])
	assert.Equal(t, "Visible text: Quarterly report", lines[2])
	assert.Equal(t, "Document type: article", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "Depth: deep scene"))
	assert.Equal(t, "Scene: indoor, office", lines[5])
	assert.Equal(t, "Warning: incomplete analysis, failed layers: segmentation", lines[6])
}

func TestGenerateAIContextEmptyResult(t *testing.T) {
	t.Parallel()

	r := NewAnalysisResult("id", "hash", time.Now())
	assert.Empty(t, r.GenerateAIContext())
}

func TestGenerateAIContextCapsObjectsAndText(t *testing.T) {
	t.Parallel()

	objects := make([]DetectedObject, 15)
	for i := range objects {
		objects[i] = DetectedObject{Label: "obj", Confidence: float64(i) / 100}
	}
	r := NewAnalysisResult("id", "hash", time.Now()).
		WithObjects(objects).
		WithText([]TextBlock{{Text: strings.Repeat("a", 800)}}, nil, nil)

	lines := strings.Split(r.GenerateAIContext(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 10, strings.Count(lines[0], "obj"))
	assert.Equal(t, len("Visible text: ")+500+3, len(lines[1]))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "héll...", Truncate("héllo world", 4))
	assert.Empty(t, Truncate("x", 0))
}

func TestParseLayerNamesRejectsUnknown(t *testing.T) {
	t.Parallel()

	set, err := ParseLayerNames([]string{"description", " textRecognition"})
	require.NoError(t, err)
	assert.Equal(t, []Layer{LayerText, LayerDescription}, set.Sorted())

	_, err = ParseLayerNames([]string{"ocr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown layer "ocr"`)
}

func TestRequiresAcceleration(t *testing.T) {
	t.Parallel()

	for _, l := range []Layer{LayerObjects, LayerSegmentation, LayerDepth} {
		assert.True(t, l.RequiresAcceleration(), l)
	}
	// text and the rule-based synthesizer run anywhere
	assert.False(t, LayerText.RequiresAcceleration())
	assert.False(t, LayerDescription.RequiresAcceleration())
}
