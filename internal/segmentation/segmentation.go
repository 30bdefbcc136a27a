// Package segmentation turns model mask output into foreground region
// descriptions.
package segmentation

import (
	"fmt"
	"slices"

	"github.com/tphakala/imagelens/internal/vision"
)

const (
	// Threshold is the mask value above which a pixel is foreground
	Threshold = 127
	// MaxHints bounds how many detected objects are segmented per image
	MaxHints = 10
)

// FullFrame is the region of interest covering the whole image.
var FullFrame = vision.BoundingBox{X: 0, Y: 0, Width: 1, Height: 1}

// Region is a mask produced for one region of interest.
type Region struct {
	Mask   []byte
	Width  int
	Height int
	// ROI is where the mask sits in normalized image coordinates
	ROI      vision.BoundingBox
	ObjectID string
}

// Build describes the foreground of a region. It reports false when no pixel
// passes the threshold.
func Build(r Region) (vision.SegmentationMask, bool, error) {
	if r.Width <= 0 || r.Height <= 0 || len(r.Mask) < r.Width*r.Height {
		return vision.SegmentationMask{}, false, fmt.Errorf("mask of %d bytes does not fit %dx%d", len(r.Mask), r.Width, r.Height)
	}
	roi := r.ROI.Clamp()
	if roi.Area() == 0 {
		return vision.SegmentationMask{}, false, fmt.Errorf("empty region of interest")
	}

	var (
		fg                   int
		sumX, sumY, sumValue float64
	)
	minX, minY := r.Width, r.Height
	maxX, maxY := -1, -1
	binary := make([]byte, r.Width*r.Height)
	for y := range r.Height {
		for x := range r.Width {
			v := r.Mask[y*r.Width+x]
			if v <= Threshold {
				continue
			}
			binary[y*r.Width+x] = 255
			fg++
			sumX += float64(x) + 0.5
			sumY += float64(y) + 0.5
			sumValue += float64(v)
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if fg == 0 {
		return vision.SegmentationMask{}, false, nil
	}

	w, h := float64(r.Width), float64(r.Height)
	toImageX := func(px float64) float64 { return roi.X + px/w*roi.Width }
	toImageY := func(py float64) float64 { return roi.Y + py/h*roi.Height }

	box := vision.BoundingBox{
		X:      toImageX(float64(minX)),
		Y:      toImageY(float64(minY)),
		Width:  float64(maxX-minX+1) / w * roi.Width,
		Height: float64(maxY-minY+1) / h * roi.Height,
	}

	return vision.SegmentationMask{
		Mask:         binary,
		Width:        r.Width,
		Height:       r.Height,
		Box:          box.Clamp(),
		AreaFraction: float64(fg) / (w * h) * roi.Area(),
		Centroid: vision.Point{
			X: toImageX(sumX / float64(fg)),
			Y: toImageY(sumY / float64(fg)),
		},
		ObjectID:   r.ObjectID,
		Confidence: sumValue / float64(fg) / 255,
	}, true, nil
}

// TopHints returns up to MaxHints objects with the highest confidence and a
// usable box.
func TopHints(objects []vision.DetectedObject) []vision.DetectedObject {
	hints := make([]vision.DetectedObject, 0, len(objects))
	for i := range objects {
		if objects[i].Box.Clamp().Area() > 0 {
			hints = append(hints, objects[i])
		}
	}
	slices.SortStableFunc(hints, func(a, b vision.DetectedObject) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
	if len(hints) > MaxHints {
		hints = hints[:MaxHints]
	}
	return hints
}
