// Package config provides configuration management for Confidant.
// It loads settings from environment variables with the CONFIDANT_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Confidant application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Engine   EngineConfig
	Security SecurityConfig
	Content  ContentConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6464)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres, memory (default: sqlite)
	DataPath      string // Path to data directory for sqlite (default: ./data)
	PostgresDSN   string // PostgreSQL connection string when engine is postgres
}

// EngineConfig contains engagement engine tuning.
type EngineConfig struct {
	MinOfflineDuration time.Duration // Minimum offline time after a goodbye (default: 5m)
	IdleWindow         time.Duration // Presence records idle longer than this are purged (default: 6h)
	SweepInterval      time.Duration // How often the idle cleanup runs (default: 15m)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode   string  // Security mode: development, production (default: development)
	APIToken       string  // API authentication token
	RateLimitRPS   float64 // Requests per second per client (default: 10)
	RateLimitBurst int     // Burst allowance above the sustained rate (default: 20)
}

// ContentConfig points at optional content override files.
type ContentConfig struct {
	SituationsPath string // YAML file overriding built-in situation scripts
	CatalogPath    string // YAML file defining the media asset catalog
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the CONFIDANT_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("CONFIDANT_PORT", 6464),
			Host: getEnv("CONFIDANT_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("CONFIDANT_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("CONFIDANT_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("CONFIDANT_POSTGRES_DSN", ""),
		},
		Engine: EngineConfig{
			MinOfflineDuration: getEnvDuration("CONFIDANT_MIN_OFFLINE_DURATION", 5*time.Minute),
			IdleWindow:         getEnvDuration("CONFIDANT_IDLE_WINDOW", 6*time.Hour),
			SweepInterval:      getEnvDuration("CONFIDANT_SWEEP_INTERVAL", 15*time.Minute),
		},
		Security: SecurityConfig{
			SecurityMode:   getEnv("CONFIDANT_SECURITY_MODE", "development"),
			APIToken:       getEnv("CONFIDANT_API_TOKEN", ""),
			RateLimitRPS:   getEnvFloat("CONFIDANT_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvInt("CONFIDANT_RATE_LIMIT_BURST", 20),
		},
		Content: ContentConfig{
			SituationsPath: getEnv("CONFIDANT_SITUATIONS_PATH", ""),
			CatalogPath:    getEnv("CONFIDANT_CATALOG_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: CONFIDANT_POSTGRES_DSN is required for the postgres engine")
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: CONFIDANT_API_TOKEN is required in production mode")
	}
	if c.Security.RateLimitRPS <= 0 || c.Security.RateLimitBurst < 1 {
		return fmt.Errorf("config: rate limit must be positive")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "5m", "6h") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
