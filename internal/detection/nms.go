package detection

import (
	"slices"

	"github.com/tphakala/imagelens/internal/vision"
)

// IoU returns intersection over union of two boxes, 0 when they do not overlap.
func IoU(a, b vision.BoundingBox) float64 {
	inter := a.Intersection(b)
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NonMaxSuppression keeps the highest scoring candidate of every same-class
// cluster whose IoU reaches threshold. Classes never suppress each other.
// Output is ordered by score descending; ties keep input order.
func NonMaxSuppression(candidates []Candidate, threshold float64) []Candidate {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	suppressed := make([]bool, len(sorted))
	kept := make([]Candidate, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassIndex != sorted[i].ClassIndex {
				continue
			}
			if IoU(sorted[i].Box, sorted[j].Box) >= threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
