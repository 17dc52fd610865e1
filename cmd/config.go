package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zorak1103/whatsrunning/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the effective configuration",
	Long: `Display the effective configuration that whatsrunning will use at runtime.

This shows the merged configuration from:
  1. Default values
  2. Configuration file (config.yaml)
  3. Environment variables (highest priority)`,
	Example: `  # Show current configuration
  whatsrunning config

  # Show with custom config file
  whatsrunning config --config /etc/whatsrunning/config.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		if err := validateConfigOrExit(cfg); err != nil {
			return err
		}

		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(configCmd)
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "=== whatsrunning Effective Configuration ===")
	fmt.Fprintln(w)

	source := cfg.ConfigFilePath
	if source == "" {
		source = "(none, defaults and environment only)"
	}
	fmt.Fprintf(w, "Config File:        %s\n", source)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Docker:")
	fmt.Fprintf(w, "   Socket Path:     %s\n", cfg.Docker.SocketPath)
	fmt.Fprintf(w, "   Max Requests:    %d\n", cfg.Docker.MaxConcurrentRequests)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Engine:")
	fmt.Fprintf(w, "   Self ID:         %s\n", orNotSet(cfg.Engine.SelfID))
	fmt.Fprintf(w, "   Hostname:        %s\n", cfg.Engine.Hostname)
	fmt.Fprintf(w, "   Deadline:        %s\n", cfg.Engine.Deadline)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Probe:")
	fmt.Fprintf(w, "   Timeout:         %s\n", cfg.Probe.Timeout)
	fmt.Fprintf(w, "   Skip TLS Verify: %v\n", cfg.Probe.InsecureSkipVerify)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "   Listen Address:  %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(w, "   Cache TTL:       %s\n", cfg.Server.CacheTTL)
	fmt.Fprintf(w, "   Version:         %s\n", displayVersion(cfg))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Log:")
	fmt.Fprintf(w, "   Level:           %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "   Format:          %s\n", cfg.Log.Format)
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
