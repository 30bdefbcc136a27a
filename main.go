package main

import (
	"os"

	"github.com/tphakala/imagelens/cmd"
	"github.com/tphakala/imagelens/internal/buildinfo"
	"github.com/tphakala/imagelens/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, buildinfo.Current())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
