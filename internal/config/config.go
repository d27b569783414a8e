package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Persistence: DatabaseURL selects PostgreSQL; when empty the service
	// falls back to the embedded SQLite store at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	// RedisURL enables the shared dedup cache for multi-instance
	// deployments; when empty the process-local cache is used.
	RedisURL string

	MediaDir string

	// Bridge sidecar (the messaging-transport collaborator).
	BridgeURL   string
	BridgeToken string

	// Classification and registration policy.
	DefaultCountryCode string
	DedupLimit         int
	CommandPrefix      string
	CredentialTTL      time.Duration
	CredentialLength   int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/messenger.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		MediaDir:           getEnv("MEDIA_DIR", "./data/media"),
		BridgeURL:          os.Getenv("BRIDGE_URL"),
		BridgeToken:        os.Getenv("BRIDGE_TOKEN"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "91"),
		DedupLimit:         getEnvInt("DEDUP_LIMIT", 2000),
		CommandPrefix:      getEnv("REGISTER_COMMAND_PREFIX", "register "),
		CredentialTTL:      time.Duration(getEnvInt("CREDENTIAL_TTL_MINUTES", 10)) * time.Minute,
		CredentialLength:   getEnvInt("CREDENTIAL_LENGTH", 4),
	}

	if cfg.BridgeURL == "" {
		panic("BRIDGE_URL is required")
	}
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.BridgeToken == "" {
			panic("BRIDGE_TOKEN is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic("invalid int for env " + key + ": " + value)
	}
	return n
}
