// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Database         string  `validate:"required"`
	MediaDir         string  `validate:"required"`
	DesiredRetention float64 `validate:"gt=0,lte=1"`
}

// Load reads configuration from the environment, providing sensible
// defaults, and ensures the data directories exist.
func Load() (Config, error) {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		Database:         getEnv("MEMORU_DATABASE", "./data/memoru.db"),
		MediaDir:         getEnv("MEMORU_MEDIA_DIR", "./data/media"),
		DesiredRetention: 0.9,
	}

	if raw, ok := os.LookupEnv("MEMORU_RETENTION"); ok && raw != "" {
		retention, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse MEMORU_RETENTION %q: %w", raw, err)
		}
		cfg.DesiredRetention = retention
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure media dir %s: %w", cfg.MediaDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure database dir %s: %w", cfg.Database, err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
