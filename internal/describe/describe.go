// Package describe synthesizes a structured caption and tag set from the
// outputs of the other analysis layers using fixed rules.
package describe

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/imagelens/internal/vision"
)

const (
	// CaptionConfidence is the floor for labels named in the caption
	CaptionConfidence = 0.5
	captionMaxLabels  = 5
	excerptRunes      = 100
)

var numericDate = regexp.MustCompile(`\b\d{1,4}[./-]\d{1,2}[./-]\d{1,4}\b`)

// Clock classifies a capture time into a time-of-day name. *suncalc.SunCalc
// satisfies it.
type Clock interface {
	TimeOfDay(t time.Time) string
}

// Input carries the upstream signals the synthesizer may use.
type Input struct {
	Objects    []vision.DetectedObject
	TextBlocks []vision.TextBlock
	Document   *vision.DocumentAnalysis
	CapturedAt time.Time
}

// Synthesizer is the rule-based description generator.
type Synthesizer struct {
	clock Clock
}

// New returns a synthesizer. clock may be nil, in which case time of day is
// left empty.
func New(clock Clock) *Synthesizer {
	return &Synthesizer{clock: clock}
}

// Describe builds a description. The output depends only on its input.
func (s *Synthesizer) Describe(in Input) vision.StructuredDescription {
	d := vision.EmptyDescription()

	ranked := rankObjects(in.Objects)
	labels := distinctLabels(ranked, 0)
	captionLabels := distinctLabels(ranked, CaptionConfidence)
	if len(captionLabels) > captionMaxLabels {
		captionLabels = captionLabels[:captionMaxLabels]
	}

	text := joinText(in.TextBlocks)

	d.Caption = caption(captionLabels, text != "")
	d.SceneTags = matchTable(sceneTable, labels)
	d.ActivityTags = matchTable(activityTable, labels)
	d.Objects = objectDescriptions(ranked)
	d.Mood = mood(labels, d.SceneTags)

	if in.Document != nil && in.Document.Type != vision.DocumentUnknown {
		if c, ok := documentCaptions[string(in.Document.Type)]; ok {
			d.Caption = c
		}
		d.SceneTags = []string{"document", in.Document.Type.DisplayName()}
	}

	if text != "" {
		d.TextExcerpt = vision.Truncate(text, excerptRunes)
	}

	textTags := textTags(text)
	d.SuggestedTags = suggestedTags(labels, in.Document, textTags)
	if slices.Contains(textTags, "contact") {
		d.SafetyFlags = append(d.SafetyFlags, "personal_information")
	}

	if s.clock != nil && !in.CapturedAt.IsZero() {
		d.TimeOfDay = s.clock.TimeOfDay(in.CapturedAt)
	}

	d.Detailed = detailed(d.Caption, len(in.Objects), d.TextExcerpt)
	return d
}

func rankObjects(objects []vision.DetectedObject) []vision.DetectedObject {
	ranked := slices.Clone(objects)
	slices.SortStableFunc(ranked, func(a, b vision.DetectedObject) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return strings.Compare(a.Label, b.Label)
		}
	})
	return ranked
}

func distinctLabels(ranked []vision.DetectedObject, floor float64) []string {
	var labels []string
	for i := range ranked {
		if ranked[i].Confidence < floor || slices.Contains(labels, ranked[i].Label) {
			continue
		}
		labels = append(labels, ranked[i].Label)
	}
	return labels
}

func caption(labels []string, hasText bool) string {
	switch {
	case len(labels) > 0:
		return "An image containing " + strings.Join(labels, ", ")
	case hasText:
		return "An image containing text"
	default:
		return "An image"
	}
}

func matchTable(table []tagRule, labels []string) []string {
	tags := []string{}
	for _, row := range table {
		for _, l := range labels {
			if slices.Contains(row.labels, l) {
				tags = append(tags, row.tag)
				break
			}
		}
	}
	return tags
}

func objectDescriptions(ranked []vision.DetectedObject) []vision.ObjectDescription {
	out := make([]vision.ObjectDescription, 0, len(ranked))
	for i := range ranked {
		out = append(out, vision.ObjectDescription{
			Name:       ranked[i].Label,
			Region:     region(ranked[i].Box.Center()),
			Prominence: ranked[i].Box.Clamp().Area(),
		})
	}
	return out
}

// region names the cell of a 3x3 grid that p falls in
func region(p vision.Point) string {
	col := []string{"left", "center", "right"}[third(p.X)]
	row := []string{"top", "middle", "bottom"}[third(p.Y)]
	switch {
	case row == "middle" && col == "center":
		return "center"
	case row == "middle":
		return col
	default:
		return row + "-" + col
	}
}

func third(v float64) int {
	switch {
	case v < 1.0/3:
		return 0
	case v < 2.0/3:
		return 1
	default:
		return 2
	}
}

func mood(labels, scenes []string) string {
	switch {
	case slices.Contains(scenes, "people") && slices.Contains(scenes, "food"):
		return "social"
	case slices.Contains(scenes, "nature"):
		return "calm"
	case slices.Contains(scenes, "office"):
		return "focused"
	case slices.Contains(labels, "person"):
		return "lively"
	default:
		return "neutral"
	}
}

func textTags(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var tags []string
	if strings.Contains(lower, "@") || strings.Contains(lower, "tel") || strings.Contains(lower, "phone") {
		tags = append(tags, "contact")
	}
	if strings.Contains(lower, "http") || strings.Contains(lower, "www.") {
		tags = append(tags, "link")
	}
	if strings.ContainsAny(lower, "$€£¥₹") {
		tags = append(tags, "price")
	}
	if strings.Contains(lower, "date") || numericDate.MatchString(lower) {
		tags = append(tags, "date")
	}
	return tags
}

func suggestedTags(labels []string, doc *vision.DocumentAnalysis, textTags []string) []string {
	set := make(map[string]struct{}, len(labels)+len(textTags)+1)
	for _, l := range labels {
		set[l] = struct{}{}
	}
	if doc != nil && doc.Type != vision.DocumentUnknown {
		set[doc.Type.DisplayName()] = struct{}{}
	}
	for _, t := range textTags {
		set[t] = struct{}{}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

func detailed(caption string, objects int, excerpt string) string {
	var b strings.Builder
	b.WriteString(caption)
	b.WriteByte('.')
	switch objects {
	case 0:
	case 1:
		b.WriteString(" 1 object detected.")
	default:
		fmt.Fprintf(&b, " %d objects detected.", objects)
	}
	if excerpt != "" {
		fmt.Fprintf(&b, " Text reads: %q", excerpt)
	}
	return b.String()
}

func joinText(blocks []vision.TextBlock) string {
	parts := make([]string, 0, len(blocks))
	for i := range blocks {
		if t := strings.TrimSpace(blocks[i].Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
