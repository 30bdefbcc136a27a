// Package layers adapts inference, OCR and the rule-based algorithms to a
// uniform per-layer interface used by the pipeline.
package layers

import (
	"context"
	"time"

	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/vision"
)

// Input carries the image and the upstream outputs a layer may consume.
type Input struct {
	Image      *imageutil.Image
	CapturedAt time.Time

	// filled by earlier groups
	Objects    []vision.DetectedObject
	TextBlocks []vision.TextBlock
	Document   *vision.DocumentAnalysis
}

// Adapter runs one layer. Errors are returned unwrapped; the caller records
// them against the layer.
type Adapter interface {
	Layer() vision.Layer
	Run(ctx context.Context, in *Input) (vision.LayerOutput, error)
}

// Registry maps layers to their adapters.
type Registry map[vision.Layer]Adapter

// Available returns the layers with a registered adapter.
func (r Registry) Available() vision.LayerSet {
	set := vision.LayerSet{}
	for l := range r {
		set[l] = struct{}{}
	}
	return set
}
