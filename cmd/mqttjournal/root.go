package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
)

// Configuration file lookup.
const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "MQTTJOURNAL_CONFIG"
)

// app holds what every subcommand needs once configuration is loaded.
type app struct {
	cfg *config.Config
	log *logging.Logger
	out io.Writer
}

// newRootCmd builds the command tree. Configuration is loaded once in
// PersistentPreRunE before any subcommand runs.
func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:           "mqttjournal",
		Short:         "MQTT session manager with a bounded message journal",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath(configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			a.cfg = cfg
			a.log = logging.New(cfg.Logging, version)
			a.out = cmd.OutOrStdout()
			a.log.Debug("configuration loaded", "path", path)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		newMonitorCmd(a),
		newPublishCmd(a),
		newInspectCmd(a),
	)
	return root
}

// resolveConfigPath picks the config file: the flag, then the environment
// variable, then the default path if it exists. An empty result means
// defaults plus environment overrides only.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
