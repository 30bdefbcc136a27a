package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/imagelens/internal/errors"
)

// newTextHandler creates the human-readable console handler. Timestamps are
// omitted; the execution environment (journald, Docker) adds them.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				lvl, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				return slog.String(slog.LevelKey, formatLevel(lvl))
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(a.Key, t.In(tz).Format(time.RFC3339))
			}
			return a
		},
	}
	return slog.NewTextHandler(w, opts)
}

// formatLevel renders levels padded to a fixed width so console columns line up
func formatLevel(level slog.Level) string {
	name := level.String()
	if level <= traceLevelValue {
		name = "TRACE"
	}
	if len(name) < maxLevelWidth {
		name += strings.Repeat(" ", maxLevelWidth-len(name))
	}
	return name
}

// parseSlogLevel converts a LogLevel to its slog.Level
func parseSlogLevel(level LogLevel) slog.Level {
	return parseLogLevel(string(level))
}

// NewSlogLogger creates a standalone Logger writing text to w. A nil writer
// discards output. Mainly used by tests and by components constructed
// without a CentralLogger.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	slogLevel := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, slogLevel, tz)),
		level:    slogLevel,
		timezone: tz,
	}
}

// validateLevel reports an error for unknown level names
func validateLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// fanout hands each record to every handler that accepts its level, so a
// module can log JSON to its own file and text to the console at once.
type fanout []slog.Handler

// combine returns the single handler as is and wraps several in a fanout.
func combine(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(f, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

//nolint:gocritic // slog.Handler requires the record by value
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.apply(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.apply(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) apply(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
