package layers

import (
	"context"
	"fmt"

	"github.com/tphakala/imagelens/internal/depth"
	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/vision"
)

// Depth runs a monocular depth model and summarizes its map.
type Depth struct {
	runner inference.Runner
}

// NewDepth returns the depth adapter.
func NewDepth(runner inference.Runner) *Depth {
	return &Depth{runner: runner}
}

func (d *Depth) Layer() vision.Layer { return vision.LayerDepth }

func (d *Depth) Run(ctx context.Context, in *Input) (vision.LayerOutput, error) {
	outputs, err := d.runner.Run(ctx, func(shape []int, dst []float32) error {
		w, h := inference.InputSize(shape)
		if w == 0 || h == 0 || len(dst) < w*h*3 {
			return fmt.Errorf("unsupported depth input shape %v", shape)
		}
		imageutil.FillTensor(dst, in.Image.Pixels, w, h)
		return nil
	})
	if err != nil {
		return vision.LayerOutput{}, err
	}
	if len(outputs) == 0 {
		return vision.LayerOutput{}, fmt.Errorf("depth model produced no output")
	}

	out := outputs[0]
	var width, height int
	switch len(out.Shape) {
	case 3:
		height, width = out.Shape[1], out.Shape[2]
	case 4:
		height, width = out.Shape[1], out.Shape[2]
		if out.Shape[3] != 1 {
			return vision.LayerOutput{}, fmt.Errorf("unsupported depth output shape %v", out.Shape)
		}
	default:
		return vision.LayerOutput{}, fmt.Errorf("unsupported depth output shape %v", out.Shape)
	}

	summary, err := depth.SummarizeValues(out.Data, width, height)
	if err != nil {
		return vision.LayerOutput{}, err
	}
	return vision.LayerOutput{Layer: vision.LayerDepth, Depth: summary}, nil
}
