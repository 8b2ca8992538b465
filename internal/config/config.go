// Package config resolves process configuration from the environment,
// generalizing the teacher's inline os.Getenv calls into one typed
// struct now that more than one setting is needed.
package config

import (
	"errors"
	"os"
)

var errDatabaseURLRequired = errors.New("DATABASE_URL environment variable is required")

// Config holds the settings the exchange reads at startup.
type Config struct {
	// DatabaseURL selects the relational backend (spec §6 "Environment").
	DatabaseURL string
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string
	// AdminAPIKey seeds the bootstrap admin principal's api_key on first
	// run. A default is present for first-run convenience only, per spec.
	AdminAPIKey string
}

const defaultAdminAPIKey = "00000000-0000-4000-8000-000000000001"

// Load reads configuration from the environment with defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		AdminAPIKey: getenvDefault("ADMIN_API_KEY", defaultAdminAPIKey),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errDatabaseURLRequired
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
