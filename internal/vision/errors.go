package vision

import (
	"fmt"

	"github.com/tphakala/imagelens/internal/errors"
)

// Pipeline error taxonomy. Only ErrInvalidImage and ErrNoLayersEnabled end a
// run; the rest are recorded against the failing layer.
var (
	ErrInvalidImage     = errors.NewStd("invalid image")
	ErrNoLayersEnabled  = errors.NewStd("no analysis layers enabled")
	ErrModelUnavailable = errors.NewStd("model unavailable")
	ErrModelLoadFailure = errors.NewStd("model load failure")
	ErrAnalysisTimeout  = errors.NewStd("analysis timeout")
)

// LayerError wraps the cause of a non-fatal layer failure.
type LayerError struct {
	Layer Layer
	Cause error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %s failed: %v", e.Layer, e.Cause)
}

func (e *LayerError) Unwrap() error { return e.Cause }
