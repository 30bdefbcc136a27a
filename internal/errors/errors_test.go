package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = NewStd("sentinel failure")

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderPreservesSentinel(t *testing.T) {
	t.Parallel()

	wrapped := New(fmt.Errorf("decode step: %w", errSentinel)).
		Component("imageutil").
		Category(CategoryImageDecode).
		Context("format", "png").
		Build()

	require.ErrorIs(t, wrapped, errSentinel)
	assert.True(t, IsCategory(wrapped, CategoryImageDecode))
	assert.False(t, IsCategory(wrapped, CategoryNotFound))
	assert.Equal(t, "png", wrapped.GetContext()["format"])
	assert.Equal(t, "imageutil", wrapped.GetComponent())
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := New(errSentinel).Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"

	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestImageContextShortensHash(t *testing.T) {
	t.Parallel()

	hash := strings.Repeat("ab", 32)
	ee := New(errSentinel).ImageContext(hash, 2048).Build()

	assert.Equal(t, "abababababab", ee.GetContext()["image_hash"])
	assert.Equal(t, "small", ee.GetContext()["image_size_category"])
}

func TestDetectCategoryHeuristics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg       string
		component string
		want      ErrorCategory
	}{
		{"failed to load model file", "", CategoryModelLoad},
		{"tensor allocation failed", "", CategoryInference},
		{"context deadline exceeded", "", CategoryTimeout},
		{"something odd", "cache", CategoryCache},
		{"something odd", "", CategoryGeneric},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, detectCategory(NewStd(tt.msg), tt.component), tt.msg)
	}
}

func TestRegexScrubbing(t *testing.T) {
	t.Parallel()

	scrubbed := basicURLScrub("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicURLScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	hash := strings.Repeat("0f", 32)
	scrubbed = basicURLScrub("cache miss for " + hash)
	assert.NotContains(t, scrubbed, hash)
	assert.Contains(t, scrubbed, "[HASH_REDACTED]")
}
