// Package document infers paragraph, list and document-type structure from
// recognized text blocks.
package document

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/tphakala/imagelens/internal/vision"
)

const (
	// ParagraphGap is the largest vertical gap, as a fraction of image height,
	// between two blocks of the same paragraph
	ParagraphGap = 0.03

	// longTextRunes separates short business-card text from articles
	longTextRunes = 500
)

var (
	bulletGlyphs   = []string{"•", "-", "*", "◦"}
	numberedMarker = regexp.MustCompile(`^\d+[.)]\s`)
	currencySigns  = []string{"$", "€", "£", "¥", "₹"}
)

// Analyze builds the document structure for a set of text blocks and decoded
// codes. It returns nil when there is nothing to analyze.
func Analyze(blocks []vision.TextBlock, codes []vision.Barcode) *vision.DocumentAnalysis {
	if len(blocks) == 0 && len(codes) == 0 {
		return nil
	}

	paragraphs := Paragraphs(blocks)
	payloads := make([]string, 0, len(codes))
	for i := range codes {
		payloads = append(payloads, codes[i].Payload)
	}

	return &vision.DocumentAnalysis{
		Type:              InferType(joinBlocks(blocks)),
		Bounds:            bounds(blocks),
		Paragraphs:        paragraphs,
		Lists:             Lists(paragraphs),
		Tables:            [][]string{},
		Codes:             payloads,
		AverageConfidence: averageConfidence(blocks),
	}
}

// Paragraphs orders blocks top to bottom and merges consecutive blocks whose
// vertical gap is at most ParagraphGap.
func Paragraphs(blocks []vision.TextBlock) []string {
	if len(blocks) == 0 {
		return []string{}
	}

	sorted := slices.Clone(blocks)
	slices.SortStableFunc(sorted, func(a, b vision.TextBlock) int {
		switch {
		case a.Box.Y < b.Box.Y:
			return -1
		case a.Box.Y > b.Box.Y:
			return 1
		}
		switch {
		case a.Box.X < b.Box.X:
			return -1
		case a.Box.X > b.Box.X:
			return 1
		}
		return 0
	})

	var (
		paragraphs []string
		current    []string
		lastBottom float64
	)
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = current[:0]
		}
	}

	for i := range sorted {
		text := strings.TrimSpace(sorted[i].Text)
		if text == "" {
			continue
		}
		if len(current) > 0 && sorted[i].Box.Y-lastBottom > ParagraphGap {
			flush()
		}
		if len(current) == 0 {
			lastBottom = sorted[i].Box.MaxY()
		} else {
			lastBottom = max(lastBottom, sorted[i].Box.MaxY())
		}
		current = append(current, text)
	}
	flush()

	if paragraphs == nil {
		return []string{}
	}
	return paragraphs
}

// Lists groups consecutive bulleted or numbered paragraphs into item lists
// with their markers removed.
func Lists(paragraphs []string) [][]string {
	lists := [][]string{}
	var current []string
	for _, p := range paragraphs {
		item, ok := stripListMarker(p)
		if !ok {
			if len(current) > 0 {
				lists = append(lists, current)
				current = nil
			}
			continue
		}
		current = append(current, item)
	}
	if len(current) > 0 {
		lists = append(lists, current)
	}
	return lists
}

func stripListMarker(p string) (string, bool) {
	p = strings.TrimSpace(p)
	for _, glyph := range bulletGlyphs {
		if rest, ok := strings.CutPrefix(p, glyph); ok {
			return strings.TrimSpace(rest), true
		}
	}
	if loc := numberedMarker.FindStringIndex(p); loc != nil {
		return strings.TrimSpace(p[loc[1]:]), true
	}
	return "", false
}

// InferType classifies text; the first matching rule wins.
func InferType(text string) vision.DocumentType {
	lower := strings.ToLower(text)
	runes := utf8.RuneCountInString(text)

	switch {
	case isReceipt(lower):
		return vision.DocumentReceipt
	case runes < longTextRunes && containsAny(lower, "@", "tel", "phone", "email"):
		return vision.DocumentBusinessCard
	case containsAny(lower, "form", "please fill", "signature", "date:"):
		return vision.DocumentForm
	case containsAny(lower, "dear", "sincerely", "regards", "to whom it may concern"):
		return vision.DocumentLetter
	case runes > longTextRunes:
		return vision.DocumentArticle
	default:
		return vision.DocumentUnknown
	}
}

func isReceipt(lower string) bool {
	if containsAny(lower, currencySigns...) && strings.Contains(lower, "total") {
		return true
	}
	return containsAny(lower, "receipt", "invoice", "subtotal", "tax")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func joinBlocks(blocks []vision.TextBlock) string {
	parts := make([]string, 0, len(blocks))
	for i := range blocks {
		parts = append(parts, blocks[i].Text)
	}
	return strings.Join(parts, "\n")
}

func bounds(blocks []vision.TextBlock) vision.BoundingBox {
	if len(blocks) == 0 {
		return vision.BoundingBox{}
	}
	b := blocks[0].Box
	for i := 1; i < len(blocks); i++ {
		b = b.Union(blocks[i].Box)
	}
	return b.Clamp()
}

func averageConfidence(blocks []vision.TextBlock) float64 {
	if len(blocks) == 0 {
		return 0
	}
	var sum float64
	for i := range blocks {
		sum += blocks[i].Confidence
	}
	return sum / float64(len(blocks))
}
