// Package config provides configuration management for go-xc-watch.
// It uses koanf for flexible configuration loading from YAML files with validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/natefinch/atomic"
)

// Config holds the complete configuration for the go-xc-watch application.
// It represents the structure of config.yaml with validation rules for each section.
type Config struct {
	Xtream   XtreamConfig   `koanf:"xtream"`
	Store    StoreConfig    `koanf:"store"`
	Server   ServerConfig   `koanf:"server"`
	Playback PlaybackConfig `koanf:"playback"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// XtreamConfig contains Xtream-Codes backend connection and credential settings.
// Credentials here are optional seed values; logins performed through the API
// are persisted to the credential store and take precedence.
type XtreamConfig struct {
	ServerURL         string        `koanf:"server_url"`
	Username          string        `koanf:"username"`
	Password          string        `koanf:"password"`
	DisplayName       string        `koanf:"display_name"`
	Timeout           time.Duration `koanf:"timeout"`
	ListTimeout       time.Duration `koanf:"list_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// StoreConfig defines where the embedded credential store keeps its database.
type StoreConfig struct {
	Directory string `koanf:"directory"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port              int           `koanf:"port"`
	Host              string        `koanf:"host"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	EnableCompression bool          `koanf:"enable_compression"`
}

// PlaybackConfig controls playback session behavior: automatic retry policy,
// controls auto-hide and skip distance.
type PlaybackConfig struct {
	MaxRetries        int           `koanf:"max_retries"`
	RetryBackoff      time.Duration `koanf:"retry_backoff"`
	ControlsHideDelay time.Duration `koanf:"controls_hide_delay"`
	SkipInterval      time.Duration `koanf:"skip_interval"`
}

// LoggingConfig defines logging behavior and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads configuration from the specified YAML file and applies validation.
// Returns a validated Config struct or an error if loading/validation fails.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Load configuration from YAML file
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for missing values
	applyDefaults(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults sets sensible defaults for configuration values that weren't specified.
func applyDefaults(config *Config) {
	// Xtream defaults: the backend protocol uses a 10s timeout for most calls
	// and 15s for full catalog listings.
	if config.Xtream.Timeout == 0 {
		config.Xtream.Timeout = 10 * time.Second
	}
	if config.Xtream.ListTimeout == 0 {
		config.Xtream.ListTimeout = 15 * time.Second
	}
	if config.Xtream.RequestsPerSecond == 0 {
		config.Xtream.RequestsPerSecond = 4
	}

	// Store defaults
	if config.Store.Directory == "" {
		config.Store.Directory = "./data"
	}

	// Server defaults
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 15 * time.Second
	}

	// Playback defaults
	if config.Playback.MaxRetries == 0 {
		config.Playback.MaxRetries = 2
	}
	if config.Playback.RetryBackoff == 0 {
		config.Playback.RetryBackoff = 1 * time.Second
	}
	if config.Playback.ControlsHideDelay == 0 {
		config.Playback.ControlsHideDelay = 5 * time.Second
	}
	if config.Playback.SkipInterval == 0 {
		config.Playback.SkipInterval = 10 * time.Second
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
}

// GetLogLevel converts the string log level to slog.Level.
// Returns slog.LevelInfo for invalid or unknown levels.
func (c *LoggingConfig) GetLogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// defaultConfigYAML is written on first run so users have a commented
// starting point rather than an error about a missing file.
const defaultConfigYAML = `# go-xc-watch configuration
xtream:
  server_url: ""        # e.g. http://example.tv:8080
  username: ""
  password: ""
  display_name: ""

store:
  directory: "./data"

server:
  host: "0.0.0.0"
  port: 8080

playback:
  max_retries: 2
  retry_backoff: 1s
  controls_hide_delay: 5s
  skip_interval: 10s

logging:
  level: "info"
  format: "json"
`

// WriteDefault writes a commented default configuration file at the given path.
// The write is atomic so a crash cannot leave a half-written config behind.
// Returns an error if a file already exists at the path.
func WriteDefault(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	reader := strings.NewReader(defaultConfigYAML)
	if err := atomic.WriteFile(configPath, reader); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}
