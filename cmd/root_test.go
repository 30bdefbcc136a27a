package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/imagelens/internal/buildinfo"
	"github.com/tphakala/imagelens/internal/conf"
)

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("1.4.0", "2026-10-01"))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("cache:\n  backend: sqlite\n  path: %s\nlogging:\n  console:\n    enabled: false\n",
		filepath.Join(dir, "imagelens.db"))
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestVersionSkipsConfiguration(t *testing.T) {
	out, err := run(t, "version", "--config", "/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "imagelens 1.4.0 (built 2026-10-01")
}

func TestConfigSetLayersAndShow(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "config", "set-layers", "description", "textRecognition")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled layers: [textRecognition description]")

	out, err = run(t, "--config", cfgPath, "config", "show")
	require.NoError(t, err)

	var shown struct {
		EnabledLayers []string `json:"enabledLayers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, []string{"textRecognition", "description"}, shown.EnabledLayers)
}

func TestConfigSetLayersRejectsUnknown(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, "--config", cfgPath, "config", "set-layers", "faces")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown layer "faces"`)
}

func TestCacheCommandsOnEmptyCache(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "cache", "stats")
	require.NoError(t, err)
	var stats struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.Count)

	out, err = run(t, "--config", cfgPath, "cache", "prune", "--max-age", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 entries older than 1h0m0s")

	out, err = run(t, "--config", cfgPath, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared")
}

func TestMissingConfigFileFails(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "cache", "stats")
	require.Error(t, err)
}
