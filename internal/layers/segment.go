package layers

import (
	"context"
	"fmt"
	"math"

	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/inference"
	"github.com/tphakala/imagelens/internal/segmentation"
	"github.com/tphakala/imagelens/internal/vision"
)

// Segmentation runs the mask model once per hinted object, or once over the
// whole frame when there are no hints.
type Segmentation struct {
	runner inference.Runner
}

// NewSegmentation returns the segmentation adapter.
func NewSegmentation(runner inference.Runner) *Segmentation {
	return &Segmentation{runner: runner}
}

func (s *Segmentation) Layer() vision.Layer { return vision.LayerSegmentation }

func (s *Segmentation) Run(ctx context.Context, in *Input) (vision.LayerOutput, error) {
	type roi struct {
		box      vision.BoundingBox
		objectID string
	}

	var regions []roi
	for _, h := range segmentation.TopHints(in.Objects) {
		regions = append(regions, roi{box: h.Box, objectID: h.ID})
	}
	if len(regions) == 0 {
		regions = []roi{{box: segmentation.FullFrame}}
	}

	masks := []vision.SegmentationMask{}
	for _, r := range regions {
		pixels, err := imageutil.Crop(in.Image.Pixels, r.box)
		if err != nil {
			continue
		}

		outputs, err := s.runner.Run(ctx, func(shape []int, dst []float32) error {
			w, h := inference.InputSize(shape)
			if w == 0 || h == 0 || len(dst) < w*h*3 {
				return fmt.Errorf("unsupported segmentation input shape %v", shape)
			}
			imageutil.FillTensor(dst, pixels, w, h)
			return nil
		})
		if err != nil {
			return vision.LayerOutput{}, err
		}
		if len(outputs) == 0 {
			return vision.LayerOutput{}, fmt.Errorf("segmentation model produced no output")
		}

		mask, w, h, err := maskBytes(outputs[0])
		if err != nil {
			return vision.LayerOutput{}, err
		}
		m, ok, err := segmentation.Build(segmentation.Region{
			Mask: mask, Width: w, Height: h, ROI: r.box, ObjectID: r.objectID,
		})
		if err != nil {
			return vision.LayerOutput{}, err
		}
		if ok {
			masks = append(masks, m)
		}
	}

	return vision.LayerOutput{Layer: vision.LayerSegmentation, Masks: masks}, nil
}

// maskBytes converts a [1,H,W], [1,H,W,1] or two-class [1,H,W,2] probability
// tensor to one byte per pixel.
func maskBytes(t inference.Tensor) (mask []byte, width, height int, err error) {
	channels := 1
	switch len(t.Shape) {
	case 3:
	case 4:
		channels = t.Shape[3]
	default:
		return nil, 0, 0, fmt.Errorf("unsupported mask shape %v", t.Shape)
	}
	height, width = t.Shape[1], t.Shape[2]
	if channels < 1 || channels > 2 || len(t.Data) < width*height*channels {
		return nil, 0, 0, fmt.Errorf("unsupported mask shape %v", t.Shape)
	}

	mask = make([]byte, width*height)
	for i := range mask {
		p := float64(t.Data[i*channels+channels-1])
		if p < 0 || p > 1 {
			p = 1 / (1 + math.Exp(-p))
		}
		mask[i] = byte(math.Round(p * 255))
	}
	return mask, width, height, nil
}
