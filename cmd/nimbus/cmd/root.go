// Package cmd implements the CLI commands for nimbus.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/nimbus/internal/config"
	"github.com/jmylchreest/nimbus/internal/observability"
	"github.com/jmylchreest/nimbus/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// cfg is the loaded configuration, available to all subcommands after
// PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "nimbus",
	Short:   "Cloud game streaming client",
	Version: version.Short(),
	Long: `nimbus is a cloud game streaming client. It requests sessions from the
streaming service, connects to the assigned server, and manages the full
session lifecycle: launch, streaming, stats, and teardown.

The serve command runs the local control API that the streaming overlay
drives; play launches a session directly from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfig()
	}

	// These flags are NOT bound to viper. We check Changed() and only
	// then override config/env values, preserving the priority:
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/nimbus, $HOME/.nimbus)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// stringFlagOverride copies a flag value into dst only when the flag was
// set on the command line.
func stringFlagOverride(fs *pflag.FlagSet, name string, dst *string) {
	if fs.Changed(name) {
		*dst, _ = fs.GetString(name)
	}
}

// initConfig loads configuration and installs the default logger.
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	stringFlagOverride(rootCmd.PersistentFlags(), "log-level", &loaded.Logging.Level)
	stringFlagOverride(rootCmd.PersistentFlags(), "log-format", &loaded.Logging.Format)

	cfg = loaded
	observability.SetDefault(observability.NewLogger(cfg.Logging))
	return nil
}
