// Package ocr recognizes text lines and decodes barcodes in images.
package ocr

import (
	"context"
	"image"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/vision"
)

// Recognizer extracts text lines from an image.
type Recognizer interface {
	Recognize(ctx context.Context, img *imageutil.Image) ([]vision.TextBlock, error)
}

// BarcodeScanner decodes 1D and 2D codes from an image.
type BarcodeScanner interface {
	Scan(ctx context.Context, img *imageutil.Image) ([]vision.Barcode, error)
}

// NormalizeText composes unicode, collapses whitespace and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// normalizeRect converts a pixel rectangle to normalized coordinates within bounds.
func normalizeRect(r, bounds image.Rectangle) vision.BoundingBox {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if w == 0 || h == 0 {
		return vision.BoundingBox{}
	}
	r = r.Intersect(bounds)
	return vision.BoundingBox{
		X:      float64(r.Min.X-bounds.Min.X) / w,
		Y:      float64(r.Min.Y-bounds.Min.Y) / h,
		Width:  float64(r.Dx()) / w,
		Height: float64(r.Dy()) / h,
	}
}
