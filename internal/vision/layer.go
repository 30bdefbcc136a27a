package vision

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/tphakala/imagelens/internal/errors"
)

// Layer identifies one analysis capability in the pipeline.
type Layer string

const (
	LayerText         Layer = "textRecognition"
	LayerObjects      Layer = "objectDetection"
	LayerSegmentation Layer = "segmentation"
	LayerDepth        Layer = "depthEstimation"
	LayerDescription  Layer = "description"
)

// AllLayers lists every layer in execution order.
var AllLayers = []Layer{
	LayerText,
	LayerObjects,
	LayerSegmentation,
	LayerDepth,
	LayerDescription,
}

// ParseLayer converts a persisted name to a Layer. Unknown names return false.
func ParseLayer(name string) (Layer, bool) {
	l := Layer(name)
	if slices.Contains(AllLayers, l) {
		return l, true
	}
	return "", false
}

// RequiresAcceleration reports whether the layer runs a model that needs
// hardware-accelerated inference.
func (l Layer) RequiresAcceleration() bool {
	switch l {
	case LayerObjects, LayerSegmentation, LayerDepth:
		return true
	default:
		return false
	}
}

func (l Layer) String() string { return string(l) }

// order returns the position of l in AllLayers
func (l Layer) order() int {
	return slices.Index(AllLayers, l)
}

// LayerSet is an unordered set of layers. It serializes as a sorted array of names.
type LayerSet map[Layer]struct{}

// NewLayerSet builds a set from the given layers.
func NewLayerSet(layers ...Layer) LayerSet {
	s := make(LayerSet, len(layers))
	for _, l := range layers {
		s[l] = struct{}{}
	}
	return s
}

// ParseLayerSet builds a set from names, dropping unknown ones.
func ParseLayerSet(names []string) LayerSet {
	s := make(LayerSet, len(names))
	for _, n := range names {
		if l, ok := ParseLayer(n); ok {
			s[l] = struct{}{}
		}
	}
	return s
}

// ParseLayerNames is the strict form of ParseLayerSet used for user input:
// any unknown name is an error listing the valid ones.
func ParseLayerNames(names []string) (LayerSet, error) {
	s := make(LayerSet, len(names))
	for _, n := range names {
		l, ok := ParseLayer(strings.TrimSpace(n))
		if !ok {
			return nil, errors.Newf("unknown layer %q, valid layers: %s", n, strings.Join(NewLayerSet(AllLayers...).Names(), ", ")).
				Component("vision").
				Category(errors.CategoryValidation).
				Build()
		}
		s[l] = struct{}{}
	}
	return s, nil
}

func (s LayerSet) Has(l Layer) bool {
	_, ok := s[l]
	return ok
}

func (s LayerSet) Len() int { return len(s) }

// Clone returns an independent copy. A nil set clones to an empty set.
func (s LayerSet) Clone() LayerSet {
	c := make(LayerSet, len(s))
	for l := range s {
		c[l] = struct{}{}
	}
	return c
}

// Intersect returns the layers present in both sets.
func (s LayerSet) Intersect(other LayerSet) LayerSet {
	out := make(LayerSet)
	for l := range s {
		if other.Has(l) {
			out[l] = struct{}{}
		}
	}
	return out
}

// Sorted returns the layers in pipeline execution order.
func (s LayerSet) Sorted() []Layer {
	out := make([]Layer, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Layer) int { return a.order() - b.order() })
	return out
}

// Names returns the layer names in pipeline execution order.
func (s LayerSet) Names() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, l := range sorted {
		out[i] = string(l)
	}
	return out
}

func (s LayerSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON accepts an array of names and silently drops unknown entries.
func (s *LayerSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = ParseLayerSet(names)
	return nil
}
