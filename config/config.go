package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration, loaded from environment variables.
type Config struct {
	ServerConfig   ServerConfig
	DatabaseConfig DatabaseConfig
	RedisConfig    RedisConfig
	CatalogConfig  CatalogConfig
	CleanupConfig  CleanupConfig
	LoggingConfig  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	PoolSize int
}

// CatalogConfig holds the exchange symbol catalog configuration
type CatalogConfig struct {
	BaseURL      string
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	RatePerMin   int
}

// CleanupConfig holds retention sweep configuration
type CleanupConfig struct {
	Token        string
	DecisionDays int
	JournalDays  int
	Batch        int
	MaxRounds    int
	Interval     time.Duration // 0 disables the background sweep
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// Load builds the configuration from environment variables with defaults
// suitable for local development.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", "0.0.0.0")
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", 8080)
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", "false") == "true"

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "autobot")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", "autobot")
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", "autobot")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	cfg.CatalogConfig.BaseURL = getEnvOrDefault("EXCHANGE_BASE_URL", "https://fapi.binance.com")
	cfg.CatalogConfig.FetchTimeout = getEnvDurationOrDefault("EXCHANGE_FETCH_TIMEOUT", 2*time.Second)
	cfg.CatalogConfig.CacheTTL = getEnvDurationOrDefault("EXCHANGE_CACHE_TTL", 5*time.Minute)
	cfg.CatalogConfig.RatePerMin = getEnvIntOrDefault("EXCHANGE_RATE_PER_MIN", 10)

	cfg.CleanupConfig.Token = getEnvOrDefault("CLEANUP_TOKEN", "")
	cfg.CleanupConfig.DecisionDays = getEnvIntOrDefault("CLEANUP_DECISION_DAYS", 365)
	cfg.CleanupConfig.JournalDays = getEnvIntOrDefault("CLEANUP_JOURNAL_DAYS", 180)
	cfg.CleanupConfig.Batch = getEnvIntOrDefault("CLEANUP_BATCH", 5000)
	cfg.CleanupConfig.MaxRounds = getEnvIntOrDefault("CLEANUP_MAX_ROUNDS", 120)
	cfg.CleanupConfig.Interval = getEnvDurationOrDefault("CLEANUP_INTERVAL", 0)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", "false") == "true"

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
