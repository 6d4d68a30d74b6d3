// Package config provides configuration management for Lineage.
// It loads settings from environment variables with the LINEAGE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Lineage application.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Harvest  HarvestConfig
	Security SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6380)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine   string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath        string // Path to data directory for sqlite and data files (default: ./data)
	PostgresDSN     string // PostgreSQL connection string (postgres engine only)
	CollectionsFile string // Path to the collections YAML file (default: <DataPath>/collections.yaml)
}

// HarvestConfig contains remote registry and pacing configuration.
type HarvestConfig struct {
	SummaryURL        string        // Registry listing page URL
	DetailURLTemplate string        // Detail page URL with %s for the entity id
	RequestsPerSecond float64       // Steady-state request rate cap (default: 2)
	MaxRetries        int           // Attempts per page (default: 3)
	BaseDelay         time.Duration // Retry backoff unit (default: 1s)
	DetailDelay       time.Duration // Per-worker pause before each detail fetch (default: 500ms)
	Concurrency       int           // Detail page workers (default: 5)
	IncrementalDays   int           // Incremental mode lookback window in days (default: 30)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token for mutating endpoints
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the LINEAGE_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("LINEAGE_PORT", 6380),
			Host: getEnv("LINEAGE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("LINEAGE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("LINEAGE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("LINEAGE_POSTGRES_DSN", ""),
		},
		Harvest: HarvestConfig{
			SummaryURL: getEnv("LINEAGE_SUMMARY_URL",
				"https://heritage.example.gov.uk/assets/listing.cfm?Region=All"),
			DetailURLTemplate: getEnv("LINEAGE_DETAIL_URL_TEMPLATE",
				"https://heritage.example.gov.uk/assets/detail.cfm?ID=%s"),
			RequestsPerSecond: getEnvFloat("LINEAGE_REQUESTS_PER_SECOND", 2),
			MaxRetries:        getEnvInt("LINEAGE_MAX_RETRIES", 3),
			BaseDelay:         getEnvDuration("LINEAGE_BASE_DELAY", time.Second),
			DetailDelay:       getEnvDuration("LINEAGE_DETAIL_DELAY", 500*time.Millisecond),
			Concurrency:       getEnvInt("LINEAGE_CONCURRENCY", 5),
			IncrementalDays:   getEnvInt("LINEAGE_INCREMENTAL_DAYS", 30),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("LINEAGE_SECURITY_MODE", "development"),
			APIToken:     getEnv("LINEAGE_API_TOKEN", ""),
		},
	}

	if cfg.Storage.CollectionsFile = getEnv("LINEAGE_COLLECTIONS_FILE", ""); cfg.Storage.CollectionsFile == "" {
		cfg.Storage.CollectionsFile = cfg.Storage.DataPath + "/collections.yaml"
	}

	return cfg, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value when unset or unparseable.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "500ms") or returns a default value when unset or
// unparseable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
