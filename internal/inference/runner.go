// Package inference owns TensorFlow Lite model handles and probes the host
// for accelerated inference support.
package inference

import (
	"context"
	"slices"
)

// Tensor is a copied model output.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Dim returns dimension i, or 0 when out of range.
func (t Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// InputSize returns width and height of an NHWC input shape.
func InputSize(shape []int) (width, height int) {
	if len(shape) != 4 {
		return 0, 0
	}
	return shape[2], shape[1]
}

// FillFunc writes model input into dst; shape is the input tensor shape.
type FillFunc func(shape []int, dst []float32) error

// Runner executes one model. Implementations serialize access to the
// underlying handle.
type Runner interface {
	Run(ctx context.Context, fill FillFunc) ([]Tensor, error)
	Close()
}

func copyTensor(shape []int, data []float32) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: slices.Clone(data)}
}
