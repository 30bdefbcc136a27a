// Package depth reduces a per-pixel depth map to summary statistics.
package depth

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tphakala/imagelens/internal/vision"
)

// Format identifies the pixel encoding of a depth buffer.
type Format int

const (
	// Float32 is little-endian IEEE-754, four bytes per pixel
	Float32 Format = iota
	// Uint8 is one byte per pixel, normalized to [0,1]
	Uint8
)

func (f Format) bytesPerPixel() int {
	if f == Uint8 {
		return 1
	}
	return 4
}

// Summarize walks every pixel once and returns min, max, average and a
// normalized histogram. Non-finite float values are skipped.
func Summarize(buf []byte, width, height int, format Format) (*vision.DepthSummary, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid depth map size %dx%d", width, height)
	}
	pixels := width * height
	if need := pixels * format.bytesPerPixel(); len(buf) < need {
		return nil, fmt.Errorf("depth buffer has %d bytes, %dx%d needs %d", len(buf), width, height, need)
	}

	value := func(i int) float64 {
		if format == Uint8 {
			return float64(buf[i]) / 255
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
	}

	summary := summarize(pixels, value)
	summary.Buffer = buf[:pixels*format.bytesPerPixel()]
	summary.Width = width
	summary.Height = height
	return summary, nil
}

// SummarizeValues is Summarize for an already decoded float map, as produced
// directly by an inference output tensor.
func SummarizeValues(values []float32, width, height int) (*vision.DepthSummary, error) {
	if width <= 0 || height <= 0 || len(values) < width*height {
		return nil, fmt.Errorf("depth map of %d values does not fit %dx%d", len(values), width, height)
	}

	summary := summarize(width*height, func(i int) float64 { return float64(values[i]) })
	buf := make([]byte, width*height*4)
	for i := range width * height {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(values[i]))
	}
	summary.Buffer = buf
	summary.Width = width
	summary.Height = height
	return summary, nil
}

func summarize(pixels int, value func(int) float64) *vision.DepthSummary {
	minV, maxV := math.Inf(1), math.Inf(-1)
	var sum float64
	count := 0
	for i := range pixels {
		v := value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
		sum += v
		count++
	}

	s := &vision.DepthSummary{}
	if count == 0 {
		return s
	}
	s.Min, s.Max = minV, maxV
	s.Average = sum / float64(count)

	span := maxV - minV
	if span <= 0 {
		return s
	}

	var counts [vision.HistogramBuckets]int
	for i := range pixels {
		v := value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bucket := int((v - minV) / span * vision.HistogramBuckets)
		bucket = min(max(bucket, 0), vision.HistogramBuckets-1)
		counts[bucket]++
	}
	for i, c := range counts {
		s.Histogram[i] = float64(c) / float64(count)
	}
	return s
}
