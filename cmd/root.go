// Package cmd implements the CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zorak1103/whatsrunning/internal/config"
	"github.com/zorak1103/whatsrunning/internal/logging"
	"github.com/zorak1103/whatsrunning/internal/version"
)

var (
	cfgFile       string
	verbose       bool
	cfg           *config.Config
	errConfigLoad error
	logger        = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "whatsrunning",
	Short: "Live overview of the containers running on a Docker host",
	Long: `whatsrunning watches a Docker host and reports, on demand, what every
running container is doing.

It features:
  - CPU and memory usage derived from Docker stats counters
  - Container status, health and uptime
  - Detection of published ports answering HTTP or HTTPS
  - An HTML dashboard and a JSON API (whatsrunning serve)
  - One-shot snapshots from the command line (whatsrunning snapshot)`,
	Version: version.GetFullVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		skipConfig := cmd.Name() == "init" || cmd.Name() == "help" || cmd.Name() == "version"
		if skipConfig {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			// Store config load error for commands that need it (serve, snapshot, config).
			// These commands fail fast with validateConfigOrExit() in their RunE handlers.
			errConfigLoad = err
			return nil
		}

		level := cfg.Log.Level
		if verbose {
			level = logging.LevelDebug
		}
		logger, err = logging.Configure(level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}
		logger.Debug("Loaded configuration.", "path", cfg.ConfigFilePath)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
}

// GetConfig returns the loaded configuration or nil if not loaded.
// Must be called after rootCmd.PersistentPreRunE has executed.
func GetConfig() *config.Config {
	return cfg
}

// GetConfigLoadError returns any error encountered during config loading.
// Returns nil if configuration loaded successfully or was not attempted.
func GetConfigLoadError() error {
	return errConfigLoad
}

// validateConfigOrExit returns a user-facing error when no usable configuration was loaded.
func validateConfigOrExit(cfg *config.Config) error {
	if cfg != nil {
		return nil
	}
	if err := GetConfigLoadError(); err != nil {
		return fmt.Errorf("configuration could not be loaded: %w\n\nRun 'whatsrunning init' to create a sample config.yaml", err)
	}
	return fmt.Errorf("configuration not loaded\n\nRun 'whatsrunning init' to create a sample config.yaml")
}
