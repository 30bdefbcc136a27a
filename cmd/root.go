package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/imagelens/cmd/analyze"
	"github.com/tphakala/imagelens/cmd/cache"
	"github.com/tphakala/imagelens/cmd/config"
	"github.com/tphakala/imagelens/cmd/serve"
	"github.com/tphakala/imagelens/cmd/version"
	"github.com/tphakala/imagelens/internal/buildinfo"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/telemetry"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile    string
		centralLogger *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "imagelens",
		Short:         "imagelens on-device image analysis",
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		analyze.Command(settings),
		serve.Command(settings),
		cache.Command(settings),
		config.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version and help never touch configuration
		if cmd.Name() == versionCmd.Name() || cmd.Name() == "help" {
			return nil
		}

		conf.SetConfigFile(configFile)
		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded

		centralLogger, err = initLogging(settings)
		if err != nil {
			return err
		}

		return telemetry.Init(settings, build)
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush(telemetry.DefaultFlushTimeout)
		if centralLogger != nil {
			return centralLogger.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("main.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// initLogging installs the global logger described by the logging section.
// Debug mode lowers the default and console levels.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Main.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}
