// Package config provides configuration management for the Tailwag hub and
// agent.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// HubConfig holds hub-level configuration loaded from environment variables.
type HubConfig struct {
	Environment Environment
	ListenAddr  string
	DatabaseURL string
	// SigningKey is the base64-encoded Ed25519 private key used to sign
	// grants.
	SigningKey string
	// AuthRateLimit is requests per AuthRatePeriod on the auth endpoints.
	AuthRateLimit  int64
	AuthRatePeriod string
}

// LoadHubConfig reads hub configuration from environment variables.
func LoadHubConfig() HubConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	return HubConfig{
		Environment:    env,
		ListenAddr:     getEnvStr("LISTEN_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SigningKey:     os.Getenv("LICENSE_SIGNING_KEY"),
		AuthRateLimit:  int64(getEnvInt("AUTH_RATE_LIMIT", 30)),
		AuthRatePeriod: getEnvStr("AUTH_RATE_PERIOD", "1m"),
	}
}

// getEnvStr reads a string from an environment variable, returning the default if unset.
func getEnvStr(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
