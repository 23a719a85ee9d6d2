package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/plenum/config"
)

var configOut string

// configCmd prints the configuration a run would use, after overlaying the
// optional --config file on the embedded defaults.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the active configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			logrus.Fatalf("loading config: %v", err)
		}
		if configOut != "" {
			if err := cfg.WriteYAML(configOut); err != nil {
				logrus.Fatalf("%v", err)
			}
			return
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			logrus.Fatalf("marshaling config: %v", err)
		}
		fmt.Print(string(data))
	},
}

func init() {
	configCmd.Flags().StringVar(&configOut, "out", "", "Write the config to a file instead of stdout")
	rootCmd.AddCommand(configCmd)
}
