package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/datastore"
	"github.com/tphakala/imagelens/internal/pipeline"
	"github.com/tphakala/imagelens/internal/vision"
)

// Command creates the pipeline configuration command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the stored pipeline configuration",
		Long:  "The pipeline configuration stored in the preferences table takes precedence over the pipeline section of the config file.",
	}

	cmd.AddCommand(showCommand(settings), setLayersCommand(settings))
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the pipeline configuration in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPreferences(settings, func(prefs *datastore.Preferences) error {
				cfg, err := pipeline.LoadConfig(prefs, pipeline.FromSettings(&settings.Pipeline))
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			})
		},
	}
}

func setLayersCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "set-layers [layer...]",
		Short: "Store the set of enabled layers",
		Long:  "Store the set of enabled layers. Valid names: textRecognition, objectDetection, segmentation, depthEstimation, description.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layers, err := vision.ParseLayerNames(args)
			if err != nil {
				return err
			}
			return withPreferences(settings, func(prefs *datastore.Preferences) error {
				cfg, err := pipeline.LoadConfig(prefs, pipeline.FromSettings(&settings.Pipeline))
				if err != nil {
					return err
				}
				cfg.EnabledLayers = layers
				if err := pipeline.SaveConfig(prefs, cfg); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enabled layers: %v\n", layers.Names())
				return err
			})
		},
	}
}

func withPreferences(settings *conf.Settings, fn func(*datastore.Preferences) error) error {
	store, err := datastore.Open(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	prefs, err := datastore.NewPreferences(store)
	if err != nil {
		return err
	}
	return fn(prefs)
}
