package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the rosary service.
type Config struct {
	// Required
	AudioDir string // Root of the local voice directories

	// Optional with defaults
	RemoteAudioURL  string        // Base URL for remote recordings (default: none)
	Port            string        // Server port (default: 8080)
	ConfigDir       string        // Config directory, holds the database (default: /config)
	CacheDir        string        // Download cache for remote recordings (default: /cache)
	DefaultVoice    string        // Voice used when a request names none (default: female)
	PersistDebounce time.Duration // Quiet period before a session snapshot is written (default: 2s)
	SampleRate      int           // Output sample rate in Hz (default: 44100)
	ResolveTimeout  time.Duration // Per-request timeout for remote recordings (default: 30s)
	LogLevel        string        // Log level: debug, info, warn, error (default: info)
}

// Load reads configuration from environment variables.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required fields
	cfg.AudioDir = os.Getenv("ROSARY_AUDIO_DIR")
	if cfg.AudioDir == "" {
		errs = append(errs, "ROSARY_AUDIO_DIR is required")
	}

	// Optional fields with defaults
	cfg.Port = getEnvOrDefault("ROSARY_PORT", "8080")
	cfg.ConfigDir = getEnvOrDefault("ROSARY_CONFIG_DIR", "/config")
	cfg.CacheDir = getEnvOrDefault("ROSARY_CACHE_DIR", "/cache")
	cfg.DefaultVoice = getEnvOrDefault("ROSARY_DEFAULT_VOICE", "female")
	cfg.LogLevel = strings.ToLower(getEnvOrDefault("ROSARY_LOG_LEVEL", "info"))

	cfg.RemoteAudioURL = strings.TrimSuffix(os.Getenv("ROSARY_REMOTE_AUDIO_URL"), "/")
	if cfg.RemoteAudioURL != "" {
		u, err := url.Parse(cfg.RemoteAudioURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("ROSARY_REMOTE_AUDIO_URL must be an http(s) URL (got: %s)", cfg.RemoteAudioURL))
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Sprintf("ROSARY_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel))
	}

	// Snapshot debounce
	debounceStr := getEnvOrDefault("ROSARY_PERSIST_DEBOUNCE", "2s")
	debounce, err := time.ParseDuration(debounceStr)
	if err != nil || debounce <= 0 {
		errs = append(errs, fmt.Sprintf("ROSARY_PERSIST_DEBOUNCE must be a positive duration (got: %s)", debounceStr))
	} else {
		cfg.PersistDebounce = debounce
	}

	// Sample rate
	rateStr := getEnvOrDefault("ROSARY_SAMPLE_RATE", "44100")
	rate, err := strconv.Atoi(rateStr)
	if err != nil || rate < 8000 || rate > 192000 {
		errs = append(errs, "ROSARY_SAMPLE_RATE must be an integer between 8000 and 192000")
	} else {
		cfg.SampleRate = rate
	}

	// Remote resolve timeout
	timeoutStr := getEnvOrDefault("ROSARY_RESOLVE_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		errs = append(errs, fmt.Sprintf("ROSARY_RESOLVE_TIMEOUT must be a positive duration (got: %s)", timeoutStr))
	} else {
		cfg.ResolveTimeout = timeout
	}

	if len(errs) > 0 {
		return nil, errors.New("configuration errors: " + strings.Join(errs, "; "))
	}

	return cfg, nil
}

// DatabasePath returns the full path to the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ConfigDir, "rosary.db")
}

// AudioCacheDir returns where remote recordings are downloaded to.
func (c *Config) AudioCacheDir() string {
	return filepath.Join(c.CacheDir, "audio")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
