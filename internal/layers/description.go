package layers

import (
	"context"

	"github.com/tphakala/imagelens/internal/describe"
	"github.com/tphakala/imagelens/internal/vision"
)

// Description synthesizes the caption from earlier layer outputs.
type Description struct {
	synth *describe.Synthesizer
}

// NewDescription returns the description adapter.
func NewDescription(synth *describe.Synthesizer) *Description {
	return &Description{synth: synth}
}

func (d *Description) Layer() vision.Layer { return vision.LayerDescription }

func (d *Description) Run(ctx context.Context, in *Input) (vision.LayerOutput, error) {
	if err := ctx.Err(); err != nil {
		return vision.LayerOutput{}, err
	}
	desc := d.synth.Describe(describe.Input{
		Objects:    in.Objects,
		TextBlocks: in.TextBlocks,
		Document:   in.Document,
		CapturedAt: in.CapturedAt,
	})
	return vision.LayerOutput{Layer: vision.LayerDescription, Description: &desc}, nil
}
