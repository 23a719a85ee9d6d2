// Package cmd wires the plenum CLI: headless scenario runs, config
// inspection, and solver parameter tuning.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   string // log verbosity
	configPath string // optional config overlay file
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "plenum",
	Short: "Fluid network simulator for vessel and duct colonies",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config YAML file (empty = embedded defaults)")
}
