// Package imageutil decodes images and prepares them for model input.
package imageutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder

	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/vision"
)

// Image is a decoded image together with the identity of its source bytes.
type Image struct {
	Pixels image.Image
	Format string
	Hash   string
	Size   int
	// Raw holds the undecoded bytes for engines that take encoded input
	Raw []byte
}

// Width returns the pixel width.
func (i *Image) Width() int { return i.Pixels.Bounds().Dx() }

// Height returns the pixel height.
func (i *Image) Height() int { return i.Pixels.Bounds().Dy() }

// ContentHash returns the hex sha256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Decode hashes and decodes data. Failures wrap vision.ErrInvalidImage.
func Decode(data []byte) (*Image, error) {
	hash := ContentHash(data)
	if len(data) == 0 {
		return nil, invalidImage(fmt.Errorf("%w: empty input", vision.ErrInvalidImage), hash, 0)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// registered decoders failed, try WebP
		webpImg, webpErr := webp.Decode(bytes.NewReader(data))
		if webpErr != nil {
			return nil, invalidImage(fmt.Errorf("%w: %w", vision.ErrInvalidImage, err), hash, len(data))
		}
		img, format = webpImg, "webp"
	}

	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, invalidImage(fmt.Errorf("%w: zero-sized image", vision.ErrInvalidImage), hash, len(data))
	}

	return &Image{Pixels: img, Format: format, Hash: hash, Size: len(data), Raw: data}, nil
}

func invalidImage(err error, hash string, size int) error {
	return errors.New(err).
		Component("imageutil").
		Category(errors.CategoryImageDecode).
		ImageContext(hash, size).
		Build()
}

// Crop returns the part of img inside a normalized box.
func Crop(img image.Image, box vision.BoundingBox) (image.Image, error) {
	bounds := img.Bounds()
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())
	box = box.Clamp()

	x0 := bounds.Min.X + int(box.X*fw+0.5)
	y0 := bounds.Min.Y + int(box.Y*fh+0.5)
	x1 := bounds.Min.X + int(box.MaxX()*fw+0.5)
	y1 := bounds.Min.Y + int(box.MaxY()*fh+0.5)

	rect := image.Rect(x0, y0, x1, y1).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle for box %+v", box)
	}
	return imaging.Crop(img, rect), nil
}

// ToTensor resizes img to width x height and packs it as NHWC float32 RGB
// normalized to [0,1].
func ToTensor(img image.Image, width, height int) []float32 {
	out := make([]float32, width*height*3)
	FillTensor(out, img, width, height)
	return out
}

// FillTensor is ToTensor writing into dst, which must hold width*height*3
// values. It is used to fill an interpreter input buffer in place.
func FillTensor(dst []float32, img image.Image, width, height int) {
	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	pix := resized.Pix
	for y := range height {
		row := y * resized.Stride
		for x := range width {
			src := row + x*4
			d := (y*width + x) * 3
			dst[d] = float32(pix[src]) / 255
			dst[d+1] = float32(pix[src+1]) / 255
			dst[d+2] = float32(pix[src+2]) / 255
		}
	}
}

// Grayscale resizes img and returns one byte per pixel.
func Grayscale(img image.Image, width, height int) []byte {
	gray := imaging.Grayscale(imaging.Resize(img, width, height, imaging.Lanczos))
	out := make([]byte, width*height)
	for y := range height {
		for x := range width {
			out[y*width+x] = gray.Pix[y*gray.Stride+x*4]
		}
	}
	return out
}
