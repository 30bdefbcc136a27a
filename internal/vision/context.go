package vision

import (
	"strings"
	"unicode/utf8"
)

const (
	aiContextMaxObjects = 10
	aiContextMaxText    = 500
)

// GenerateAIContext renders a line-oriented summary of the result for prompt
// injection. Line order is fixed: caption, objects, visible text, document
// type, depth, scene tags, failed-layer warning. Lines with no content are
// omitted.
func (r *AnalysisResult) GenerateAIContext() string {
	var b strings.Builder

	writeLine := func(prefix, value string) {
		if value == "" {
			return
		}
		b.WriteString(prefix)
		b.WriteString(value)
		b.WriteByte('\n')
	}

	writeLine("Image description: ", r.Description.Caption)

	objects := r.ObjectsByConfidence()
	if len(objects) > aiContextMaxObjects {
		objects = objects[:aiContextMaxObjects]
	}
	labels := make([]string, 0, len(objects))
	for i := range objects {
		labels = append(labels, objects[i].Label)
	}
	writeLine("Detected objects: ", strings.Join(labels, ", "))

	writeLine("Visible text: ", Truncate(r.FullText(), aiContextMaxText))

	if r.Document != nil && r.Document.Type != DocumentUnknown {
		writeLine("Document type: ", r.Document.Type.DisplayName())
	}

	writeLine("Depth: ", r.Depth.Describe())
	writeLine("Scene: ", strings.Join(r.Description.SceneTags, ", "))

	if r.FailedLayers.Len() > 0 {
		writeLine("Warning: incomplete analysis, failed layers: ", strings.Join(r.FailedLayers.Names(), ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
