package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/vision"
)

// TesseractOptions configures the tesseract recognizer.
type TesseractOptions struct {
	Languages []string
	// TessData overrides the tessdata directory when set
	TessData string
	// MinConfidence drops lines below it, in [0,1]
	MinConfidence float64
}

// Tesseract recognizes text with libtesseract. The client is not safe for
// concurrent use, so calls are serialized.
type Tesseract struct {
	opts   TesseractOptions
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract returns a recognizer; the tesseract client is created lazily.
func NewTesseract(opts TesseractOptions) *Tesseract {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	return &Tesseract{opts: opts}
}

func (t *Tesseract) ensureClient() error {
	if t.client != nil {
		return nil
	}
	client := gosseract.NewClient()
	if t.opts.TessData != "" {
		if err := client.SetTessdataPrefix(t.opts.TessData); err != nil {
			_ = client.Close()
			return err
		}
	}
	if err := client.SetLanguage(t.opts.Languages...); err != nil {
		_ = client.Close()
		return err
	}
	t.client = client
	return nil
}

// Recognize returns one block per text line.
func (t *Tesseract) Recognize(ctx context.Context, img *imageutil.Image) ([]vision.TextBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// re-encode so tesseract never sees a format leptonica lacks
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Pixels); err != nil {
		return nil, fmt.Errorf("encode image for OCR: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureClient(); err != nil {
		return nil, errors.New(fmt.Errorf("%w: tesseract: %w", vision.ErrModelUnavailable, err)).
			Component("ocr").
			Category(errors.CategoryModelInit).
			Context("languages", t.opts.Languages).
			Build()
	}

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryInference).
			ImageContext(img.Hash, img.Size).
			Build()
	}

	lines, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryInference).
			ImageContext(img.Hash, img.Size).
			Build()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Pixels.Bounds()
	lang := t.opts.Languages[0]
	blocks := make([]vision.TextBlock, 0, len(lines))
	for i := range lines {
		text := NormalizeText(lines[i].Word)
		conf := lines[i].Confidence / 100
		if text == "" || conf < t.opts.MinConfidence {
			continue
		}
		blocks = append(blocks, vision.TextBlock{
			Text:       text,
			Box:        normalizeRect(lines[i].Box.Add(bounds.Min), bounds),
			Confidence: min(1, max(0, conf)),
			Language:   lang,
		})
	}

	GetLogger().Debug("text recognized",
		logger.String("image_hash", img.Hash),
		logger.Int("lines", len(blocks)))
	return blocks, nil
}

// Close releases the tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}
