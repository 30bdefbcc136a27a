package layers

import (
	"context"
	"fmt"
	"math"

	"github.com/tphakala/imagelens/internal/detection"
	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/vision"
)

// Objects runs the detection model and decodes its output.
type Objects struct {
	runner inference.Runner
	labels detection.Labels
}

// NewObjects returns the object detection adapter.
func NewObjects(runner inference.Runner, labels detection.Labels) *Objects {
	if len(labels) == 0 {
		labels = detection.DefaultLabels()
	}
	return &Objects{runner: runner, labels: labels}
}

func (o *Objects) Layer() vision.Layer { return vision.LayerObjects }

func (o *Objects) Run(ctx context.Context, in *Input) (vision.LayerOutput, error) {
	var inputW, inputH int
	outputs, err := o.runner.Run(ctx, func(shape []int, dst []float32) error {
		w, h := inference.InputSize(shape)
		if w == 0 || h == 0 || len(dst) < w*h*3 {
			return fmt.Errorf("unsupported detection input shape %v", shape)
		}
		inputW, inputH = w, h
		imageutil.FillTensor(dst, in.Image.Pixels, w, h)
		return nil
	})
	if err != nil {
		return vision.LayerOutput{}, err
	}

	candidates, err := decodeDetections(outputs, inputW, inputH)
	if err != nil {
		return vision.LayerOutput{}, err
	}
	kept := detection.NonMaxSuppression(candidates, detection.IoUThreshold)

	return vision.LayerOutput{
		Layer:   vision.LayerObjects,
		Objects: detection.ToObjects(kept, o.labels),
	}, nil
}

// decodeDetections handles both a single raw tensor and the four tensor
// boxes/classes/scores/count layout of models with built-in post-processing.
func decodeDetections(outputs []inference.Tensor, inputW, inputH int) ([]detection.Candidate, error) {
	switch {
	case len(outputs) == 1:
		raw := outputs[0]
		if !pixelCoordinates(raw) {
			inputW, inputH = 0, 0
		}
		return detection.DecodeRaw(raw.Data, raw.Shape, inputW, inputH)
	case len(outputs) >= 3:
		return detection.DecodeParsed(parsedDetections(outputs)), nil
	default:
		return nil, fmt.Errorf("detection model produced %d outputs", len(outputs))
	}
}

// pixelCoordinates reports whether box centers exceed the unit range
func pixelCoordinates(t inference.Tensor) bool {
	layout, n, err := detection.DetectLayout(t.Shape)
	if err != nil || len(t.Data) < n*detection.RowSize {
		return false
	}
	for i := range min(n, 32) {
		var cx float32
		if layout == detection.ChannelLast {
			cx = t.Data[i*detection.RowSize]
		} else {
			cx = t.Data[i]
		}
		if cx > 1.5 {
			return true
		}
	}
	return false
}

func parsedDetections(outputs []inference.Tensor) []detection.Parsed {
	boxes, classes, scores := outputs[0].Data, outputs[1].Data, outputs[2].Data
	n := min(len(boxes)/4, len(classes), len(scores))
	if len(outputs) >= 4 && len(outputs[3].Data) > 0 {
		if count := float64(outputs[3].Data[0]); !math.IsNaN(count) {
			n = min(n, int(max(count, 0)))
		}
	}
	n = max(n, 0)

	parsed := make([]detection.Parsed, 0, n)
	for i := range n {
		parsed = append(parsed, detection.Parsed{
			Box:        [4]float32{boxes[i*4], boxes[i*4+1], boxes[i*4+2], boxes[i*4+3]},
			ClassIndex: int(classes[i]),
			Score:      scores[i],
		})
	}
	return parsed
}
