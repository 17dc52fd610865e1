package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/zorak1103/whatsrunning/internal/config"
)

func containsString(s, substr string) bool {
	return strings.Contains(s, substr)
}

func TestConfigCmd_Structure(t *testing.T) {
	t.Parallel()

	if configCmd.Use != "config" {
		t.Errorf("Expected command use 'config', got '%s'", configCmd.Use)
	}

	if configCmd.Short == "" {
		t.Error("Expected command short description to be set")
	}

	if configCmd.RunE == nil {
		t.Error("Expected RunE to be set")
	}
}

func TestPrintConfig(t *testing.T) {
	t.Parallel()

	c := &config.Config{
		Docker: config.DockerConfig{SocketPath: "unix:///var/run/docker.sock", MaxConcurrentRequests: 4},
		Engine: config.EngineConfig{Hostname: "nas.local", Deadline: 25 * time.Second},
		Probe:  config.ProbeConfig{Timeout: 2 * time.Second},
		Server: config.ServerConfig{ListenAddress: "0.0.0.0:5000", Version: "1.2.3"},
		Log:    config.LogConfig{Level: "info", Format: "text"},
	}

	var buf bytes.Buffer
	printConfig(&buf, c)
	output := buf.String()

	tests := []string{
		"unix:///var/run/docker.sock",
		"nas.local",
		"25s",
		"2s",
		"0.0.0.0:5000",
		"1.2.3",
		"(not set)",
		"(none, defaults and environment only)",
	}

	for _, want := range tests {
		if !containsString(output, want) {
			t.Errorf("Expected config output to contain '%s'\n%s", want, output)
		}
	}
}

func TestConfigCmd_NotLoaded(t *testing.T) {
	originalCfg, originalErr := cfg, errConfigLoad
	defer func() { cfg, errConfigLoad = originalCfg, originalErr }()

	cfg, errConfigLoad = nil, nil

	err := configCmd.RunE(configCmd, nil)
	if err == nil {
		t.Fatal("Expected error when configuration is not loaded")
	}
}
