package analyze

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/imagelens/internal/analysis"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/pipeline"
	"github.com/tphakala/imagelens/internal/vision"
)

// Command creates a new command for one-shot image analysis.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		format     string
		layers     []string
		capturedAt string
	)

	cmd := &cobra.Command{
		Use:   "analyze [image]",
		Short: "Analyze an image file",
		Long:  "Run the enabled analysis layers on one image and print the result. Results are cached by content hash.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := analysis.ParseFormat(format)
			if err != nil {
				return err
			}

			rt, err := analysis.NewRuntime(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts, err := analyzeOptions(rt.Pipeline.RequestedConfig(), layers, capturedAt)
			if err != nil {
				return err
			}

			return analysis.FileAnalysis(cmd.Context(), rt.Pipeline, args[0], cmd.OutOrStdout(), outFormat, opts...)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(analysis.FormatJSON), "Output format: json or context")
	cmd.Flags().StringSliceVar(&layers, "layers", nil, "Layers to run instead of the configured set (comma separated)")
	cmd.Flags().StringVar(&capturedAt, "captured-at", "", "Capture time in RFC3339 format, enables time-of-day in descriptions")

	return cmd
}

// analyzeOptions turns the per-run flags into pipeline options.
func analyzeOptions(base pipeline.Config, layers []string, capturedAt string) ([]pipeline.AnalyzeOption, error) {
	var opts []pipeline.AnalyzeOption

	if len(layers) > 0 {
		set, err := vision.ParseLayerNames(layers)
		if err != nil {
			return nil, err
		}
		cfg := base.Clone()
		cfg.EnabledLayers = set
		opts = append(opts, pipeline.WithConfigOverride(cfg))
	}

	if capturedAt != "" {
		ts, err := time.Parse(time.RFC3339, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid --captured-at value: %w", err)
		}
		opts = append(opts, pipeline.WithCapturedAt(ts))
	}

	return opts, nil
}
