package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/pipeline"
	"github.com/tphakala/imagelens/internal/vision"
)

// Format selects how FileAnalysis prints a result.
type Format string

const (
	// FormatJSON prints the full result as indented JSON
	FormatJSON Format = "json"
	// FormatContext prints the plain-text context block
	FormatContext Format = "context"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatContext:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported output format %q, use json or context", s)
	}
}

// Analyzer is the part of the orchestrator FileAnalysis needs.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, opts ...pipeline.AnalyzeOption) (*vision.AnalysisResult, error)
}

// FileAnalysis analyzes one image file and writes the result to w.
func FileAnalysis(ctx context.Context, a Analyzer, path string, w io.Writer, format Format, opts ...pipeline.AnalyzeOption) error {
	if err := validateImageFile(path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", filepath.Base(path), err)
	}

	start := time.Now()
	result, err := a.Analyze(ctx, data, opts...)
	if err != nil {
		return fmt.Errorf("error analyzing %s: %w", filepath.Base(path), err)
	}

	GetLogger().Info("file analyzed",
		logger.String("file", filepath.Base(path)),
		logger.String("image_hash", result.ImageHash),
		logger.Strings("failed_layers", result.FailedLayers.Names()),
		logger.Duration("took", time.Since(start)))

	return WriteResult(w, result, format)
}

// WriteResult prints result in the given format.
func WriteResult(w io.Writer, result *vision.AnalysisResult, format Format) error {
	switch format {
	case FormatContext:
		_, err := fmt.Fprintln(w, result.GenerateAIContext())
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

// validateImageFile checks that path names a non-empty regular file.
func validateImageFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error accessing file %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return fmt.Errorf("the path %s is a directory, not a file", filepath.Base(path))
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty (0 bytes)", filepath.Base(path))
	}
	return nil
}
