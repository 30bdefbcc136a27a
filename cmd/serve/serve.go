package serve

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/imagelens/internal/analysis"
	"github.com/tphakala/imagelens/internal/conf"
)

// Command creates a new command that runs the HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the image analysis HTTP service",
		Long:  "Start the HTTP API for image analysis, configuration and cache administration. Stops on SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := analysis.NewRuntime(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer rt.Close()

			return analysis.Serve(cmd.Context(), rt)
		},
	}

	cmd.Flags().String("listen", "", "Listen address and port of the HTTP API")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	_ = viper.BindPFlag("webserver.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("telemetry.prometheus", cmd.Flags().Lookup("metrics"))

	return cmd
}
