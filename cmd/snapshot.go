package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zorak1103/whatsrunning/internal/engine"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print a one-time snapshot of the running containers",
	Long: `Snapshot takes a single snapshot of every running container and prints it.

Each row shows the container name, status, health, CPU and memory usage,
uptime and the published ports that answered HTTP or HTTPS. An empty result
means the Docker daemon could not be reached or the snapshot deadline expired.`,
	Example: `  # Print a table
  whatsrunning snapshot

  # Print JSON, e.g. for jq
  whatsrunning snapshot --json`,
	RunE: runSnapshot,
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().Bool("json", false, "print the snapshot as JSON")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	if err := validateConfigOrExit(cfg); err != nil {
		return err
	}

	dockerClient, eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer dockerClient.Close() //nolint:errcheck // Close error not actionable in defer context

	snap := eng.Snapshot(context.Background())

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return printSnapshotJSON(cmd.OutOrStdout(), snap)
	}
	return printSnapshotTable(cmd.OutOrStdout(), snap)
}

func printSnapshotJSON(w io.Writer, snap engine.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

func printSnapshotTable(w io.Writer, snap engine.Snapshot) error {
	if len(snap) == 0 {
		_, err := fmt.Fprintln(w, "No data available.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tHEALTH\tCPU %\tMEM %\tUPTIME\tPORTS")
	for _, r := range snap {
		ports := make([]string, 0, len(r.Ports))
		for _, p := range r.Ports {
			ports = append(ports, fmt.Sprintf("%s:%d", p.Protocol, p.Port))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
			r.Name, r.Status, r.Health, r.CPUPercent, r.MemoryPercent, r.Uptime, strings.Join(ports, ","))
	}
	return tw.Flush()
}
