package cmd

import (
	"fmt"
	"log/slog"

	"github.com/zorak1103/whatsrunning/internal/config"
	"github.com/zorak1103/whatsrunning/internal/docker"
	"github.com/zorak1103/whatsrunning/internal/engine"
	"github.com/zorak1103/whatsrunning/internal/inspector"
	"github.com/zorak1103/whatsrunning/internal/probe"
	"github.com/zorak1103/whatsrunning/internal/version"
)

// newEngine wires the snapshot engine from configuration.
// The caller owns the returned client and must close it.
func newEngine(cfg *config.Config, logger *slog.Logger) (docker.Client, *engine.Engine, error) {
	dockerClient, err := docker.NewClient(cfg.Docker.SocketPath, cfg.Docker.MaxConcurrentRequests)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return dockerClient, newEngineWithClient(dockerClient, cfg, logger), nil
}

func newEngineWithClient(dockerClient docker.Client, cfg *config.Config, logger *slog.Logger) *engine.Engine {
	classifier := probe.New(probe.Options{
		Timeout:            cfg.Probe.Timeout,
		InsecureSkipVerify: cfg.Probe.InsecureSkipVerify,
		Logger:             logger,
	})
	insp := inspector.New(dockerClient, classifier, inspector.Options{
		Hostname: cfg.Engine.Hostname,
		SelfID:   cfg.Engine.SelfID,
		Logger:   logger,
	})
	return engine.New(dockerClient, insp, engine.Options{
		Deadline: cfg.Engine.Deadline,
		Logger:   logger,
	})
}

// displayVersion is the version reported to users, honouring the config override.
func displayVersion(cfg *config.Config) string {
	if cfg != nil && cfg.Server.Version != "" {
		return cfg.Server.Version
	}
	return version.GetVersion()
}
