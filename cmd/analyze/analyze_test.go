package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/imagelens/internal/pipeline"
)

func TestAnalyzeOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		layers     []string
		capturedAt string
		wantOpts   int
		wantErr    string
	}{
		{name: "no flags", wantOpts: 0},
		{name: "layer override", layers: []string{"textRecognition", "description"}, wantOpts: 1},
		{name: "capture time", capturedAt: "2026-06-01T06:30:00Z", wantOpts: 1},
		{name: "both", layers: []string{"description"}, capturedAt: "2026-06-01T06:30:00+02:00", wantOpts: 2},
		{name: "unknown layer", layers: []string{"faces"}, wantErr: `unknown layer "faces"`},
		{name: "bad time", capturedAt: "yesterday", wantErr: "invalid --captured-at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts, err := analyzeOptions(pipeline.DefaultConfig(), tt.layers, tt.capturedAt)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, opts, tt.wantOpts)
		})
	}
}

func TestCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := Command(nil)
	assert.Equal(t, "json", cmd.Flags().Lookup("format").DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("layers"))
	assert.NotNil(t, cmd.Flags().Lookup("captured-at"))
	require.Error(t, cmd.Args(cmd, nil))
}
