package ocr

import (
	"image"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/imagelens/internal/imageutil"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"  Total:\t$45.00 \n", "Total: $45.00"},
		{"café", "café"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in))
	}
}

func TestNormalizeRect(t *testing.T) {
	t.Parallel()

	bounds := image.Rect(0, 0, 200, 100)
	box := normalizeRect(image.Rect(50, 25, 150, 75), bounds)
	assert.InDelta(t, 0.25, box.X, 1e-9)
	assert.InDelta(t, 0.25, box.Y, 1e-9)
	assert.InDelta(t, 0.5, box.Width, 1e-9)
	assert.InDelta(t, 0.5, box.Height, 1e-9)

	// clipped to the image
	box = normalizeRect(image.Rect(150, 50, 300, 200), bounds)
	assert.InDelta(t, 0.25, box.Width, 1e-9)
	assert.InDelta(t, 0.5, box.Height, 1e-9)
}

func TestZXingDecodesQRCode(t *testing.T) {
	t.Parallel()

	matrix, err := qrcode.NewQRCodeWriter().Encode("https://example.com/menu", gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	require.NoError(t, err)

	codes, err := NewZXing().Scan(t.Context(), &imageutil.Image{Pixels: matrix, Hash: "qr"})
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "https://example.com/menu", codes[0].Payload)
	assert.Equal(t, "QR_CODE", codes[0].Symbology)
	assert.Greater(t, codes[0].Box.Width, 0.0)
}

func TestZXingBlankImageHasNoCodes(t *testing.T) {
	t.Parallel()

	blank := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	codes, err := NewZXing().Scan(t.Context(), &imageutil.Image{Pixels: blank})
	require.NoError(t, err)
	assert.Empty(t, codes)
}
