package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// validate performs comprehensive validation of the configuration.
// Returns an error describing the first validation failure found.
func validate(config *Config) error {
	if err := validateXtream(&config.Xtream); err != nil {
		return fmt.Errorf("xtream config: %w", err)
	}

	if err := validateStore(&config.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validatePlayback(&config.Playback); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// validateXtream validates Xtream backend configuration.
// Credentials may be empty (the UI login flow supplies them), but a
// configured server URL must be well-formed.
func validateXtream(config *XtreamConfig) error {
	if config.ServerURL != "" {
		if !strings.HasPrefix(config.ServerURL, "http://") && !strings.HasPrefix(config.ServerURL, "https://") {
			return fmt.Errorf("server_url must start with http:// or https://")
		}
	}

	// The backend protocol concatenates credentials into the query string,
	// so the parameter delimiter cannot appear in them.
	if strings.ContainsAny(config.Username, "&=") {
		return fmt.Errorf("username must not contain '&' or '='")
	}
	if strings.ContainsAny(config.Password, "&=") {
		return fmt.Errorf("password must not contain '&' or '='")
	}

	if config.Timeout < time.Second || config.Timeout > time.Minute {
		return fmt.Errorf("timeout must be between 1s and 1m")
	}

	if config.ListTimeout < config.Timeout {
		return fmt.Errorf("list_timeout must be at least timeout")
	}

	if config.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}

	return nil
}

// validateStore validates store configuration and directory permissions.
func validateStore(config *StoreConfig) error {
	if config.Directory == "" {
		return fmt.Errorf("directory is required")
	}

	// Check if directory exists or can be created
	if err := os.MkdirAll(config.Directory, 0755); err != nil {
		return fmt.Errorf("cannot create store directory %s: %w", config.Directory, err)
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(config *ServerConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	return nil
}

// validatePlayback validates playback session policy.
func validatePlayback(config *PlaybackConfig) error {
	if config.MaxRetries < 0 || config.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10")
	}

	if config.RetryBackoff < 100*time.Millisecond || config.RetryBackoff > 30*time.Second {
		return fmt.Errorf("retry_backoff must be between 100ms and 30s")
	}

	if config.ControlsHideDelay < time.Second || config.ControlsHideDelay > time.Minute {
		return fmt.Errorf("controls_hide_delay must be between 1s and 1m")
	}

	if config.SkipInterval < time.Second || config.SkipInterval > 5*time.Minute {
		return fmt.Errorf("skip_interval must be between 1s and 5m")
	}

	return nil
}

// validateLogging validates logging configuration.
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("level must be one of: %s", strings.Join(validLevels, ", "))
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("format must be one of: %s", strings.Join(validFormats, ", "))
	}

	return nil
}

// contains checks if a slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
