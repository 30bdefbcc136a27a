package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tphakala/imagelens/internal/vision"
)

// TagConfidence is the floor for object labels that become tags or appear in
// the searchable text.
const TagConfidence = 0.5

// deriveSearchable builds the text indexed for search. Sections are emitted in
// a fixed order and objects are sorted by confidence, so the output does not
// depend on which layer finished first.
func deriveSearchable(r *vision.AnalysisResult) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	add(r.FullText())

	var labels []string
	for _, o := range r.ObjectsByConfidence() {
		if o.Confidence >= TagConfidence {
			labels = append(labels, fmt.Sprintf("%s (%.0f%%)", o.Label, o.Confidence*100))
		}
	}
	add(strings.Join(labels, ", "))

	add(r.Description.Caption)
	add(strings.Join(r.Description.SceneTags, " "))
	add(strings.Join(r.Description.ActivityTags, " "))
	add(r.Description.TextExcerpt)

	if r.Document != nil {
		for _, p := range r.Document.Paragraphs {
			add(p)
		}
	}
	for _, b := range r.Barcodes {
		add(b.Payload)
	}
	return strings.Join(parts, "\n")
}

// deriveTags returns the sorted union of confident labels, description tags,
// document type and mood.
func deriveTags(r *vision.AnalysisResult) []string {
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			seen[s] = struct{}{}
		}
	}

	for _, o := range r.Objects {
		if o.Confidence >= TagConfidence {
			add(o.Label)
		}
	}
	for _, t := range r.Description.SceneTags {
		add(t)
	}
	for _, t := range r.Description.ActivityTags {
		add(t)
	}
	if r.Document != nil && r.Document.Type != vision.DocumentUnknown {
		add(r.Document.Type.DisplayName())
	}
	add(r.Description.Mood)

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}
