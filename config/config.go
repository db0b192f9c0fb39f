// Package config centralizes client configuration. Values come from
// environment variables, with an optional .env file for development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the client needs to talk to the aggregator
// backend and keep its local state.
type Config struct {
	APIBaseURL string        // backend base URL, e.g. http://localhost:8080/api
	StorageDir string        // where the session snapshot and logs live
	LogLevel   string        // zerolog level name
	Timeout    time.Duration // per-request HTTP timeout
}

// Load builds a Config from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // Missing .env is fine

	cfg := &Config{
		APIBaseURL: getEnv("MULTIBANK_API_URL", "http://localhost:8080/api"),
		StorageDir: getEnv("MULTIBANK_STORAGE_DIR", ""),
		LogLevel:   getEnv("MULTIBANK_LOG_LEVEL", "info"),
	}

	if cfg.StorageDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.StorageDir = filepath.Join(home, ".multibank")
	}

	seconds, err := getEnvInt("MULTIBANK_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(seconds) * time.Second

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
