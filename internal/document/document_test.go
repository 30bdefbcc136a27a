package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/imagelens/internal/vision"
)

func line(text string, y float64) vision.TextBlock {
	return vision.TextBlock{
		Text:       text,
		Box:        vision.BoundingBox{X: 0.1, Y: y, Width: 0.5, Height: 0.02},
		Confidence: 0.9,
	}
}

func TestAnalyzeReceipt(t *testing.T) {
	t.Parallel()

	blocks := []vision.TextBlock{
		line("Total: $45.00", 0.10),
		line("Tax: $3.50", 0.13),
		line("Thank you", 0.16),
	}
	doc := Analyze(blocks, nil)
	require.NotNil(t, doc)
	assert.Equal(t, vision.DocumentReceipt, doc.Type)
	assert.Empty(t, doc.Tables)
	assert.InDelta(t, 0.9, doc.AverageConfidence, 1e-9)
	assert.InDelta(t, 0.1, doc.Bounds.Y, 1e-9)
	assert.InDelta(t, 0.08, doc.Bounds.Height, 1e-9)
}

func TestAnalyzeNothing(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Analyze(nil, nil))
}

func TestAnalyzeCodesOnly(t *testing.T) {
	t.Parallel()

	doc := Analyze(nil, []vision.Barcode{{Payload: "https://example.com", Symbology: "QR_CODE"}})
	require.NotNil(t, doc)
	assert.Equal(t, []string{"https://example.com"}, doc.Codes)
	assert.Equal(t, vision.DocumentUnknown, doc.Type)
}

func TestParagraphs(t *testing.T) {
	t.Parallel()

	blocks := []vision.TextBlock{
		line("second paragraph", 0.50),
		line("first line", 0.10),
		line("continues here", 0.14), // gap 0.02 from previous bottom
		line("  ", 0.30),
		line("still second", 0.53),
	}
	got := Paragraphs(blocks)
	assert.Equal(t, []string{"first line continues here", "second paragraph still second"}, got)
}

func TestParagraphsGapBoundary(t *testing.T) {
	t.Parallel()

	// previous bottom is 0.12
	joined := Paragraphs([]vision.TextBlock{line("a", 0.10), line("b", 0.149)})
	assert.Len(t, joined, 1)

	split := Paragraphs([]vision.TextBlock{line("a", 0.10), line("b", 0.151)})
	assert.Len(t, split, 2)
}

func TestParagraphsEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{}, Paragraphs(nil))
}

func TestLists(t *testing.T) {
	t.Parallel()

	paragraphs := []string{
		"Shopping",
		"• milk",
		"- eggs",
		"Notes",
		"1. first",
		"2) second",
		"3 no marker",
		"* last",
		"◦ really last",
	}
	got := Lists(paragraphs)
	assert.Equal(t, [][]string{
		{"milk", "eggs"},
		{"first", "second"},
		{"last", "really last"},
	}, got)
}

func TestListsNone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [][]string{}, Lists([]string{"plain", "text"}))
}

func TestInferType(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 120)

	tests := []struct {
		name string
		text string
		want vision.DocumentType
	}{
		{"currency with total", "TOTAL €12", vision.DocumentReceipt},
		{"invoice keyword", "Invoice #42", vision.DocumentReceipt},
		{"total without currency", "total score 12", vision.DocumentUnknown},
		{"business card", "Jane Doe\njane@example.com", vision.DocumentBusinessCard},
		{"long text with at sign is not a card", long + "@", vision.DocumentArticle},
		{"form", "Please fill in the blanks", vision.DocumentForm},
		{"form date", "Date: ____", vision.DocumentForm},
		{"letter", "Dear Sir,\nYours sincerely", vision.DocumentLetter},
		{"article", long, vision.DocumentArticle},
		{"short plain", "hello world", vision.DocumentUnknown},
		{"receipt beats card", "Receipt\nphone 555", vision.DocumentReceipt},
		{"card beats form", "email: a@b.c signature", vision.DocumentBusinessCard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InferType(tt.text))
		})
	}
}
