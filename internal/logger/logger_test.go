package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSlogLoggerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Info("visible", String("layer", "depth"), Int("count", 3))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "layer=depth")
	assert.Contains(t, out, "count=3")
}

func TestModuleNamesAreDotted(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("pipeline").Module("group1")

	log.Info("started")
	assert.Contains(t, buf.String(), "module=pipeline.group1")
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewSlogLogger(&buf, LogLevelDebug, time.UTC)
	child := parent.With(String("request_id", "r-1"))

	parent.Info("parent line")
	child.Info("child line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "request_id")
	assert.Contains(t, lines[1], "request_id=r-1")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(context.Background(), "abc-123")).Info("traced")
	assert.Contains(t, buf.String(), "trace_id=abc-123")
}

func TestTraceLevelRendering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelTrace, time.UTC)

	log.Trace("sql query")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestDurationFieldIsHumanReadable(t *testing.T) {
	t.Parallel()

	attr := fieldToAttr(Duration("elapsed", 1500*time.Millisecond))
	assert.Equal(t, "1.5s", attr.Value.String())
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain message", RedactSensitiveData("plain message"))
	redacted := RedactSensitiveData("Authorization: Bearer abcdef123456")
	assert.NotContains(t, redacted, "abcdef123456")
	assert.Contains(t, redacted, "[REDACTED]")
	assert.Contains(t, RedactSensitiveData("password=hunter22"), "[REDACTED]")
}

func TestCentralLoggerRoutesModuleToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.log")

	cfg := &LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		ModuleOutputs: map[string]ModuleOutput{
			"cache": {Enabled: true, FilePath: cachePath, Level: "debug"},
		},
	}

	cl, err := NewCentralLogger(cfg)
	require.NoError(t, err)

	cl.Module("cache").Debug("pruned entries", Int("deleted", 10))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "pruned entries", record["msg"])
	assert.Equal(t, "cache", record["module"])
	assert.InDelta(t, 10, record["deleted"], 0)
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestModuleLevelInheritsFromParent(t *testing.T) {
	t.Parallel()

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Console:      &ConsoleOutput{Enabled: false},
		ModuleLevels: map[string]string{"pipeline": "debug"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.mu.RLock()
	defer cl.mu.RUnlock()
	assert.Equal(t, parseLogLevel("debug"), cl.getModuleLevelLocked("pipeline.group1"))
	assert.Equal(t, parseLogLevel("warn"), cl.getModuleLevelLocked("cache"))
}

func TestLoggingConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&LoggingConfig{DefaultLevel: "debug"}).Validate())
	assert.Error(t, (&LoggingConfig{DefaultLevel: "loud"}).Validate())
	assert.Error(t, (&LoggingConfig{
		ModuleOutputs: map[string]ModuleOutput{"api": {Enabled: true}},
	}).Validate())
}

func TestModulesSharingAPathShareOneFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "analysis.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		Console: &ConsoleOutput{Enabled: false},
		ModuleOutputs: map[string]ModuleOutput{
			"pipeline": {Enabled: true, FilePath: path, Level: "debug"},
			"cache":    {Enabled: true, FilePath: path, Level: "info"},
		},
	})
	require.NoError(t, err)
	assert.Same(t, cl.moduleWriters["pipeline"], cl.moduleWriters["cache"])

	cl.Module("pipeline").Debug("layer finished", String("layer", "depthEstimation"))
	cl.Module("cache").Debug("hidden at info")
	cl.Module("cache").Info("cache hit")
	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close(), "close is idempotent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"module":"pipeline"`)
	assert.Contains(t, lines[1], `"msg":"cache hit"`)
}

func TestConsoleAlsoWritesBothOutputs(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := combine([]slog.Handler{
		newTextHandler(&a, slog.LevelDebug, time.UTC),
		newTextHandler(&b, slog.LevelWarn, time.UTC),
	})
	log := slog.New(h).With("module", "pipeline")

	log.Info("analysis complete")
	log.Warn("layer failed")

	assert.Contains(t, a.String(), "analysis complete")
	assert.Contains(t, a.String(), "layer failed")
	assert.NotContains(t, b.String(), "analysis complete")
	assert.Contains(t, b.String(), "module=pipeline")
}

func TestLogFileFlushesOnTimer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "timer.log")
	lf, err := openLogFile(path, 10*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lf.Close() })

	_, err = lf.Write([]byte("buffered line\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "buffered line")
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, lf.Close())
	_, err = lf.Write([]byte("late"))
	assert.Error(t, err)
}

func TestGormLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	g := NewGormLogger(NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("datastore"), 100*time.Millisecond)
	query := func() (string, int64) { return "SELECT * FROM image_analysis_cache", 0 }

	g.Trace(t.Context(), time.Now(), query, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "a cache miss stays at trace")

	g.Trace(t.Context(), time.Now().Add(-time.Second), query, nil)
	assert.Contains(t, buf.String(), "slow sql statement")

	buf.Reset()
	g.Trace(t.Context(), time.Now(), query, errors.New("database is locked"))
	assert.Contains(t, buf.String(), "sql statement failed")
	assert.Contains(t, buf.String(), "database is locked")
}
