package layers

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/imagelens/internal/document"
	"github.com/tphakala/imagelens/internal/ocr"
	"github.com/tphakala/imagelens/internal/vision"
)

// Text runs OCR and barcode scanning concurrently and derives the document
// structure. A failure of either sub-task fails the layer.
type Text struct {
	recognizer ocr.Recognizer
	scanner    ocr.BarcodeScanner
}

// NewText returns the text adapter. scanner may be nil to skip barcodes.
func NewText(recognizer ocr.Recognizer, scanner ocr.BarcodeScanner) *Text {
	return &Text{recognizer: recognizer, scanner: scanner}
}

func (t *Text) Layer() vision.Layer { return vision.LayerText }

func (t *Text) Run(ctx context.Context, in *Input) (vision.LayerOutput, error) {
	var (
		blocks []vision.TextBlock
		codes  []vision.Barcode
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blocks, err = t.recognizer.Recognize(gctx, in.Image)
		return err
	})
	if t.scanner != nil {
		g.Go(func() error {
			var err error
			codes, err = t.scanner.Scan(gctx, in.Image)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return vision.LayerOutput{}, err
	}

	if blocks == nil {
		blocks = []vision.TextBlock{}
	}
	if codes == nil {
		codes = []vision.Barcode{}
	}

	return vision.LayerOutput{
		Layer: vision.LayerText,
		Text: &vision.TextOutput{
			Blocks:   blocks,
			Barcodes: codes,
			Document: document.Analyze(blocks, codes),
		},
	}, nil
}
