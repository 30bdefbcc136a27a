// Package detection decodes object detection model output into normalized
// boxes and applies per-class non-maximum suppression.
package detection

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/tphakala/imagelens/internal/vision"
)

const (
	// ScoreThreshold drops candidates whose class score times objectness is below it
	ScoreThreshold = 0.3
	// IoUThreshold is the same-class overlap at which NMS suppresses a box
	IoUThreshold = 0.45
	// MaxCandidates bounds decode cost per image
	MaxCandidates = 1000

	// boxValues is cx, cy, w, h followed by objectness
	boxValues = 5
	// RowSize is the per-candidate vector length: box + objectness + class scores
	RowSize = boxValues + NumClasses
)

// Layout describes how a raw tensor is arranged.
type Layout int

const (
	// ChannelLast is [N, 85]: one row per candidate
	ChannelLast Layout = iota
	// ChannelFirst is [85, N]: one column per candidate
	ChannelFirst
)

// Candidate is a decoded detection before suppression.
type Candidate struct {
	ClassIndex int
	Score      float64
	Box        vision.BoundingBox
}

// DetectLayout infers the tensor layout from its shape. A leading batch
// dimension of 1 is ignored. It returns the layout and candidate count.
func DetectLayout(shape []int) (Layout, int, error) {
	dims := shape
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("unsupported detection tensor shape %v", shape)
	}

	switch {
	case dims[1] == RowSize:
		return ChannelLast, dims[0], nil
	case dims[0] == RowSize:
		return ChannelFirst, dims[1], nil
	default:
		return 0, 0, fmt.Errorf("detection tensor shape %v has no dimension of %d", shape, RowSize)
	}
}

// DecodeRaw decodes a flat raw tensor. Coordinates are expected normalized to
// [0,1]; when the model emits pixel coordinates pass the input width and height
// so they can be scaled down, otherwise pass 0 for both.
func DecodeRaw(data []float32, shape []int, inputWidth, inputHeight int) ([]Candidate, error) {
	layout, n, err := DetectLayout(shape)
	if err != nil {
		return nil, err
	}
	if len(data) < n*RowSize {
		return nil, fmt.Errorf("detection tensor has %d values, shape %v needs %d", len(data), shape, n*RowSize)
	}

	scaleX, scaleY := 1.0, 1.0
	if inputWidth > 0 && inputHeight > 0 {
		scaleX, scaleY = 1.0/float64(inputWidth), 1.0/float64(inputHeight)
	}

	at := func(i, j int) float64 {
		if layout == ChannelLast {
			return float64(data[i*RowSize+j])
		}
		return float64(data[j*n+i])
	}

	candidates := make([]Candidate, 0, min(n, 64))
	for i := 0; i < n && len(candidates) < MaxCandidates; i++ {
		objectness := at(i, 4)
		if objectness <= 0 || !finite(objectness) {
			continue
		}

		best, bestScore := 0, math.Inf(-1)
		for c := range NumClasses {
			if s := at(i, boxValues+c); s > bestScore {
				best, bestScore = c, s
			}
		}

		score := bestScore * objectness
		if score < ScoreThreshold || !finite(score) {
			continue
		}

		cx, cy := at(i, 0)*scaleX, at(i, 1)*scaleY
		w, h := at(i, 2)*scaleX, at(i, 3)*scaleY
		candidates = append(candidates, Candidate{
			ClassIndex: best,
			Score:      score,
			Box:        vision.BoundingBox{X: cx - w/2, Y: cy - h/2, Width: w, Height: h},
		})
	}

	return candidates, nil
}

// Parsed is one detection from a model with built-in post-processing (SSD style).
// Box is [ymin, xmin, ymax, xmax], normalized.
type Parsed struct {
	Box        [4]float32
	ClassIndex int
	Score      float32
}

// DecodeParsed converts pre-parsed detections, applying the same score floor.
func DecodeParsed(parsed []Parsed) []Candidate {
	candidates := make([]Candidate, 0, len(parsed))
	for _, p := range parsed {
		if len(candidates) >= MaxCandidates {
			break
		}
		score := float64(p.Score)
		if score < ScoreThreshold || p.ClassIndex < 0 {
			continue
		}
		ymin, xmin := float64(p.Box[0]), float64(p.Box[1])
		ymax, xmax := float64(p.Box[2]), float64(p.Box[3])
		candidates = append(candidates, Candidate{
			ClassIndex: p.ClassIndex,
			Score:      score,
			Box:        vision.BoundingBox{X: xmin, Y: ymin, Width: xmax - xmin, Height: ymax - ymin},
		})
	}
	return candidates
}

// ToObjects converts surviving candidates to detected objects with clamped
// boxes and fresh identifiers.
func ToObjects(candidates []Candidate, labels Labels) []vision.DetectedObject {
	objects := make([]vision.DetectedObject, 0, len(candidates))
	for _, c := range candidates {
		objects = append(objects, vision.DetectedObject{
			ID:         uuid.NewString(),
			Label:      labels.Name(c.ClassIndex),
			ClassIndex: c.ClassIndex,
			Confidence: math.Min(1, c.Score),
			Box:        c.Box.Clamp(),
		})
	}
	return objects
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
