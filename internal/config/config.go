// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/zorak1103/whatsrunning/internal/errors"
	"github.com/zorak1103/whatsrunning/internal/logging"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "WHATSRUNNING"

// Common errors
var (
	Err = errors.New("config error")
)

// Config represents the application configuration
type Config struct {
	Docker DockerConfig `mapstructure:"docker"`
	Engine EngineConfig `mapstructure:"engine"`
	Probe  ProbeConfig  `mapstructure:"probe"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`

	// ConfigFilePath stores the path to the loaded config file (not marshaled from YAML)
	ConfigFilePath string `mapstructure:"-"`
}

// DockerConfig contains Docker-specific settings
type DockerConfig struct {
	SocketPath            string `mapstructure:"socket_path"`
	MaxConcurrentRequests int    `mapstructure:"max_concurrent_requests"`
}

// EngineConfig contains snapshot settings
type EngineConfig struct {
	SelfID   string        `mapstructure:"self_id"`  // id prefix of the container running whatsrunning
	Hostname string        `mapstructure:"hostname"` // advertised host, used for probing and links
	Deadline time.Duration `mapstructure:"deadline"`
}

// ProbeConfig contains port probing settings
type ProbeConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	Version       string        `mapstructure:"version"` // overrides the build version on /about
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// autoDetectDockerSocket determines the Docker socket path based on environment and platform.
func autoDetectDockerSocket() string {
	if os.Getenv("DOCKER_HOST") != "" {
		return os.Getenv("DOCKER_HOST")
	}
	// Check for Unix socket
	if _, err := os.Stat("/var/run/docker.sock"); err == nil {
		return "unix:///var/run/docker.sock"
	}
	// Default to Windows named pipe if Unix socket not found
	return "npipe:////./pipe/docker_engine"
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/whatsrunning")
		v.AddConfigPath("/etc/whatsrunning")
	}

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			configFile := v.ConfigFileUsed()
			if configFile == "" {
				configFile = configPath
			}
			return nil, fmt.Errorf("error reading config file from %s: %w", configFile, err)
		}
		// Config file not found; using defaults and env vars
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		configFile := v.ConfigFileUsed()
		if configFile == "" {
			configFile = "(using defaults and environment variables)"
		}
		return nil, fmt.Errorf("error unmarshaling config from %s: %w", configFile, err)
	}

	cfg.ConfigFilePath = v.ConfigFileUsed()

	// Auto-detect Docker socket if not specified
	if cfg.Docker.SocketPath == "" {
		cfg.Docker.SocketPath = autoDetectDockerSocket()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnv enables WHATSRUNNING_* overrides plus the bare variables the
// container image has always honoured.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	aliases := map[string]string{
		"engine.self_id":  "HOSTNAME",
		"engine.hostname": "HOST_HOSTNAME",
		"server.version":  "VERSION",
	}
	for key, legacy := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Docker defaults
	v.SetDefault("docker.socket_path", autoDetectDockerSocket())
	v.SetDefault("docker.max_concurrent_requests", 4)

	// Engine defaults
	v.SetDefault("engine.self_id", "")
	v.SetDefault("engine.hostname", "localhost")
	v.SetDefault("engine.deadline", 25*time.Second)

	// Probe defaults
	v.SetDefault("probe.timeout", 2*time.Second)
	v.SetDefault("probe.insecure_skip_verify", false)

	// Server defaults
	if port := os.Getenv("FLASK_PORT"); port != "" {
		v.SetDefault("server.listen_address", "0.0.0.0:"+port)
	} else {
		v.SetDefault("server.listen_address", "0.0.0.0:5000")
	}
	v.SetDefault("server.cache_ttl", time.Duration(0))
	v.SetDefault("server.version", "")

	// Log defaults
	if os.Getenv("VERBOSE") != "" {
		v.SetDefault("log.level", logging.LevelDebug)
	} else {
		v.SetDefault("log.level", logging.LevelInfo)
	}
	v.SetDefault("log.format", logging.FormatText)
}

// Validate ensures all required fields are set and values are within valid ranges.
func (c *Config) Validate() error {
	configSource := c.ConfigFilePath
	if configSource == "" {
		configSource = "(defaults/environment)"
	}

	checks := []struct {
		key   string
		ok    bool
		issue string
	}{
		{"docker.socket_path", c.Docker.SocketPath != "", "is required"},
		{"docker.max_concurrent_requests", c.Docker.MaxConcurrentRequests >= 1, fmt.Sprintf("must be at least 1, got %d", c.Docker.MaxConcurrentRequests)},
		{"engine.hostname", c.Engine.Hostname != "", "is required"},
		{"engine.deadline", c.Engine.Deadline > 0, fmt.Sprintf("must be positive, got %s", c.Engine.Deadline)},
		{"probe.timeout", c.Probe.Timeout > 0, fmt.Sprintf("must be positive, got %s", c.Probe.Timeout)},
		{"server.listen_address", c.Server.ListenAddress != "", "is required"},
		{"server.cache_ttl", c.Server.CacheTTL >= 0, fmt.Sprintf("must not be negative, got %s", c.Server.CacheTTL)},
	}
	for _, check := range checks {
		if !check.ok {
			return &apperrors.ConfigurationError{ConfigPath: configSource, Key: check.key, Err: fmt.Errorf("%w: %s", Err, check.issue)}
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &apperrors.ConfigurationError{ConfigPath: configSource, Key: "log.level", Err: fmt.Errorf("%w: %w", Err, err)}
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return &apperrors.ConfigurationError{ConfigPath: configSource, Key: "log.format", Err: fmt.Errorf("%w: invalid log format %q", Err, c.Log.Format)}
	}

	return nil
}
