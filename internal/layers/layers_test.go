package layers

import (
	"context"
	"errors"
	"image"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/imagelens/internal/describe"
	"github.com/tphakala/imagelens/internal/detection"
	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/vision"
)

type fakeRunner struct {
	shape   []int
	outputs []inference.Tensor
	err     error
	calls   atomic.Int32
}

func (f *fakeRunner) Run(_ context.Context, fill inference.FillFunc) ([]inference.Tensor, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	size := 1
	for _, d := range f.shape {
		size *= d
	}
	if err := fill(f.shape, make([]float32, size)); err != nil {
		return nil, err
	}
	return f.outputs, nil
}

func (f *fakeRunner) Close() {}

type fakeRecognizer struct {
	blocks []vision.TextBlock
	err    error
}

func (f fakeRecognizer) Recognize(context.Context, *imageutil.Image) ([]vision.TextBlock, error) {
	return f.blocks, f.err
}

type fakeScanner struct {
	codes []vision.Barcode
	err   error
}

func (f fakeScanner) Scan(context.Context, *imageutil.Image) ([]vision.Barcode, error) {
	return f.codes, f.err
}

func testInput() *Input {
	return &Input{Image: &imageutil.Image{Pixels: image.NewNRGBA(image.Rect(0, 0, 64, 64)), Hash: "h"}}
}

func TestTextLayer(t *testing.T) {
	t.Parallel()

	rec := fakeRecognizer{blocks: []vision.TextBlock{
		{Text: "Total: $45.00", Box: vision.BoundingBox{Y: 0.1, Width: 0.5, Height: 0.02}, Confidence: 0.9},
		{Text: "Tax: $3.50", Box: vision.BoundingBox{Y: 0.13, Width: 0.5, Height: 0.02}, Confidence: 0.8},
	}}
	scan := fakeScanner{codes: []vision.Barcode{{Payload: "12345", Symbology: "EAN_13"}}}

	out, err := NewText(rec, scan).Run(t.Context(), testInput())
	require.NoError(t, err)
	require.NotNil(t, out.Text)
	assert.Equal(t, vision.LayerText, out.Layer)
	assert.Len(t, out.Text.Blocks, 2)
	require.NotNil(t, out.Text.Document)
	assert.Equal(t, vision.DocumentReceipt, out.Text.Document.Type)
	assert.Equal(t, []string{"12345"}, out.Text.Document.Codes)
}

func TestTextLayerFailsWhenEitherTaskFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("scanner exploded")
	_, err := NewText(fakeRecognizer{}, fakeScanner{err: boom}).Run(t.Context(), testInput())
	assert.ErrorIs(t, err, boom)

	_, err = NewText(fakeRecognizer{err: vision.ErrModelUnavailable}, fakeScanner{}).Run(t.Context(), testInput())
	assert.ErrorIs(t, err, vision.ErrModelUnavailable)
}

func TestTextLayerWithoutScanner(t *testing.T) {
	t.Parallel()

	out, err := NewText(fakeRecognizer{}, nil).Run(t.Context(), testInput())
	require.NoError(t, err)
	assert.NotNil(t, out.Text.Barcodes)
	assert.Nil(t, out.Text.Document)
}

func rawRow(cx, cy, w, h, obj float32, class int, score float32) []float32 {
	row := make([]float32, detection.RowSize)
	row[0], row[1], row[2], row[3], row[4] = cx, cy, w, h, obj
	row[5+class] = score
	return row
}

func TestObjectsLayerRawOutput(t *testing.T) {
	t.Parallel()

	var data []float32
	data = append(data, rawRow(0.5, 0.5, 0.4, 0.4, 1, 16, 0.9)...)
	data = append(data, rawRow(0.51, 0.51, 0.4, 0.4, 1, 16, 0.7)...)
	data = append(data, rawRow(0.2, 0.2, 0.1, 0.1, 1, 0, 0.8)...)

	runner := &fakeRunner{
		shape:   []int{1, 32, 32, 3},
		outputs: []inference.Tensor{{Shape: []int{1, 3, detection.RowSize}, Data: data}},
	}
	out, err := NewObjects(runner, nil).Run(t.Context(), testInput())
	require.NoError(t, err)
	require.Len(t, out.Objects, 2)
	assert.Equal(t, "dog", out.Objects[0].Label)
	assert.Equal(t, "person", out.Objects[1].Label)
}

func TestObjectsLayerPixelCoordinates(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		shape:   []int{1, 640, 640, 3},
		outputs: []inference.Tensor{{Shape: []int{1, detection.RowSize}, Data: rawRow(320, 320, 64, 64, 1, 2, 0.9)}},
	}
	out, err := NewObjects(runner, nil).Run(t.Context(), testInput())
	require.NoError(t, err)
	require.Len(t, out.Objects, 1)
	assert.InDelta(t, 0.45, out.Objects[0].Box.X, 1e-6)
	assert.Equal(t, "car", out.Objects[0].Label)
}

func TestObjectsLayerPixelCoordinatesNonSquare(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		shape:   []int{1, 320, 640, 3},
		outputs: []inference.Tensor{{Shape: []int{1, detection.RowSize}, Data: rawRow(320, 160, 64, 32, 1, 2, 0.9)}},
	}
	out, err := NewObjects(runner, nil).Run(t.Context(), testInput())
	require.NoError(t, err)
	require.Len(t, out.Objects, 1)
	box := out.Objects[0].Box
	assert.InDelta(t, 0.45, box.X, 1e-6)
	assert.InDelta(t, 0.45, box.Y, 1e-6)
	assert.InDelta(t, 0.1, box.Width, 1e-6)
	assert.InDelta(t, 0.1, box.Height, 1e-6)
}

func TestObjectsLayerParsedOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		shape: []int{1, 16, 16, 3},
		outputs: []inference.Tensor{
			{Shape: []int{1, 2, 4}, Data: []float32{0.1, 0.1, 0.5, 0.5, 0, 0, 1, 1}},
			{Shape: []int{1, 2}, Data: []float32{41, 0}},
			{Shape: []int{1, 2}, Data: []float32{0.8, 0.2}},
			{Shape: []int{1}, Data: []float32{2}},
		},
	}
	out, err := NewObjects(runner, detection.DefaultLabels()).Run(t.Context(), testInput())
	require.NoError(t, err)
	require.Len(t, out.Objects, 1)
	assert.Equal(t, "cup", out.Objects[0].Label)
}

func TestObjectsLayerBadCountTensor(t *testing.T) {
	t.Parallel()

	for _, count := range []float32{-3, float32(math.NaN())} {
		runner := &fakeRunner{
			shape: []int{1, 16, 16, 3},
			outputs: []inference.Tensor{
				{Shape: []int{1, 1, 4}, Data: []float32{0.1, 0.1, 0.5, 0.5}},
				{Shape: []int{1, 1}, Data: []float32{41}},
				{Shape: []int{1, 1}, Data: []float32{0.8}},
				{Shape: []int{1}, Data: []float32{count}},
			},
		}
		out, err := NewObjects(runner, nil).Run(t.Context(), testInput())
		require.NoError(t, err)
		if math.IsNaN(float64(count)) {
			assert.Len(t, out.Objects, 1)
		} else {
			assert.Empty(t, out.Objects)
		}
	}
}

func TestObjectsLayerPropagatesModelErrors(t *testing.T) {
	t.Parallel()

	_, err := NewObjects(&fakeRunner{err: vision.ErrModelLoadFailure}, nil).Run(t.Context(), testInput())
	assert.ErrorIs(t, err, vision.ErrModelLoadFailure)

	_, err = NewObjects(&fakeRunner{shape: []int{1, 3}}, nil).Run(t.Context(), testInput())
	assert.Error(t, err)
}

func squareMask() inference.Tensor {
	data := make([]float32, 16)
	for _, i := range []int{5, 6, 9, 10} {
		data[i] = 0.9
	}
	return inference.Tensor{Shape: []int{1, 4, 4, 1}, Data: data}
}

func TestSegmentationLayerPerHint(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{shape: []int{1, 8, 8, 3}, outputs: []inference.Tensor{squareMask()}}
	in := testInput()
	in.Objects = []vision.DetectedObject{
		{ID: "a", Confidence: 0.9, Box: vision.BoundingBox{X: 0, Y: 0, Width: 0.5, Height: 0.5}},
		{ID: "b", Confidence: 0.8, Box: vision.BoundingBox{X: 0.5, Y: 0.5, Width: 0.5, Height: 0.5}},
	}

	out, err := NewSegmentation(runner).Run(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, int32(2), runner.calls.Load())
	require.Len(t, out.Masks, 2)
	assert.Equal(t, "a", out.Masks[0].ObjectID)
	assert.InDelta(t, 0.25*0.25, out.Masks[0].AreaFraction, 1e-9)
	assert.InDelta(t, 0.25, out.Masks[0].Centroid.X, 1e-9)
	assert.InDelta(t, 0.75, out.Masks[1].Centroid.X, 1e-9)
}

func TestSegmentationLayerFullFrame(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{shape: []int{1, 8, 8, 3}, outputs: []inference.Tensor{squareMask()}}
	out, err := NewSegmentation(runner).Run(t.Context(), testInput())
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.calls.Load())
	require.Len(t, out.Masks, 1)
	assert.Empty(t, out.Masks[0].ObjectID)
	assert.InDelta(t, 0.25, out.Masks[0].AreaFraction, 1e-9)
}

func TestMaskBytesTwoClassAndLogits(t *testing.T) {
	t.Parallel()

	mask, w, h, err := maskBytes(inference.Tensor{Shape: []int{1, 1, 2, 2}, Data: []float32{0.9, 0.1, 0.2, 0.8}})
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	assert.Equal(t, []byte{26, 204}, mask)

	mask, _, _, err = maskBytes(inference.Tensor{Shape: []int{1, 1, 2}, Data: []float32{-10, 10}})
	require.NoError(t, err)
	assert.Less(t, mask[0], byte(5))
	assert.Greater(t, mask[1], byte(250))

	_, _, _, err = maskBytes(inference.Tensor{Shape: []int{4}})
	assert.Error(t, err)
}

func TestDepthLayer(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		shape:   []int{1, 4, 4, 3},
		outputs: []inference.Tensor{{Shape: []int{1, 2, 2}, Data: []float32{0, 0.5, 0.5, 1}}},
	}
	out, err := NewDepth(runner).Run(t.Context(), testInput())
	require.NoError(t, err)
	require.NotNil(t, out.Depth)
	assert.Equal(t, 2, out.Depth.Width)
	assert.InDelta(t, 0.5, out.Depth.Average, 1e-9)

	_, err = NewDepth(&fakeRunner{shape: []int{1, 4, 4, 3}, outputs: []inference.Tensor{{Shape: []int{1, 2, 2, 3}}}}).Run(t.Context(), testInput())
	assert.Error(t, err)
}

func TestDescriptionLayer(t *testing.T) {
	t.Parallel()

	in := testInput()
	in.Objects = []vision.DetectedObject{{Label: "cat", Confidence: 0.9}}

	out, err := NewDescription(describe.New(nil)).Run(t.Context(), in)
	require.NoError(t, err)
	require.NotNil(t, out.Description)
	assert.Equal(t, "An image containing cat", out.Description.Caption)
}

func TestRegistryAvailable(t *testing.T) {
	t.Parallel()

	r := Registry{vision.LayerDescription: NewDescription(describe.New(nil))}
	assert.True(t, r.Available().Has(vision.LayerDescription))
	assert.Equal(t, 1, r.Available().Len())
}
