package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zorak1103/whatsrunning/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the container dashboard and JSON API",
	Long: `Serve starts an HTTP server exposing:

  /                 HTML dashboard of all running containers
  /api/containers   the same snapshot as JSON
  /about            version information
  /healthz          Docker daemon reachability

Requests carrying the x-whatsrunning-probe header are answered with "Alive"
without taking a snapshot, so instances on the same host never probe each other
recursively.`,
	Example: `  # Serve on the configured address (default 0.0.0.0:5000)
  whatsrunning serve

  # Serve on a custom address with debug logging
  whatsrunning serve --listen 127.0.0.1:8080 -v`,
	RunE: runServe,
}

// nolint:gochecknoinits // Standard Cobra pattern for command registration
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "listen address, overrides server.listen_address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	if err := validateConfigOrExit(cfg); err != nil {
		return err
	}

	addr := cfg.Server.ListenAddress
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		addr = listen
	}

	dockerClient, eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer dockerClient.Close() //nolint:errcheck // Close error not actionable in defer context

	srv, err := server.New(eng, dockerClient, server.Options{
		Hostname: cfg.Engine.Hostname,
		Version:  displayVersion(cfg),
		CacheTTL: cfg.Server.CacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting whatsrunning.",
		"version", displayVersion(cfg),
		"hostname", cfg.Engine.Hostname,
		"self_id", cfg.Engine.SelfID,
		"docker", cfg.Docker.SocketPath,
	)
	return srv.ListenAndServe(ctx, addr)
}
