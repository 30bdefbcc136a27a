package ocr

import (
	"context"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/imageutil"
	"github.com/tphakala/imagelens/internal/vision"
)

// ZXing decodes barcodes with a fixed set of readers, one result per reader.
type ZXing struct {
	readers []func() gozxing.Reader
	hints   map[gozxing.DecodeHintType]any
}

// NewZXing returns a scanner for QR, Data Matrix, EAN/UPC, Code 128 and Code 39.
func NewZXing() *ZXing {
	hints := map[gozxing.DecodeHintType]any{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	return &ZXing{
		hints: hints,
		readers: []func() gozxing.Reader{
			qrcode.NewQRCodeReader,
			func() gozxing.Reader { return datamatrix.NewDataMatrixReader() },
			func() gozxing.Reader { return oned.NewMultiFormatUPCEANReader(hints) },
			oned.NewCode128Reader,
			oned.NewCode39Reader,
		},
	}
}

// Scan runs every reader over the image. A reader that finds nothing is not
// an error.
func (z *ZXing) Scan(ctx context.Context, img *imageutil.Image) ([]vision.Barcode, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img.Pixels)
	if err != nil {
		return nil, errors.New(err).
			Component("ocr").
			Category(errors.CategoryImageDecode).
			ImageContext(img.Hash, img.Size).
			Build()
	}

	w := float64(img.Width())
	h := float64(img.Height())
	codes := []vision.Barcode{}
	seen := make(map[string]struct{})

	for _, newReader := range z.readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := newReader().Decode(bmp, z.hints)
		if err != nil || result == nil {
			continue
		}
		symbology := result.GetBarcodeFormat().String()
		key := symbology + "\x00" + result.GetText()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		codes = append(codes, vision.Barcode{
			Payload:   result.GetText(),
			Symbology: symbology,
			Box:       pointsBox(result.GetResultPoints(), w, h),
		})
	}
	return codes, nil
}

// pointsBox is the normalized bounding box of the reader's result points
func pointsBox(points []gozxing.ResultPoint, w, h float64) vision.BoundingBox {
	if len(points) == 0 || w == 0 || h == 0 {
		return vision.BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.GetX()), math.Max(maxX, p.GetX())
		minY, maxY = math.Min(minY, p.GetY()), math.Max(maxY, p.GetY())
	}
	return vision.BoundingBox{
		X:      minX / w,
		Y:      minY / h,
		Width:  (maxX - minX) / w,
		Height: (maxY - minY) / h,
	}.Clamp()
}
