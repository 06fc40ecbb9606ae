// Package config provides configuration management for the portfolio engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/hexastock/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Price     PriceConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// StorageConfig selects where portfolios and the journal live
type StorageConfig struct {
	Backend        types.StorageBackend
	MigrationsPath string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// Enabled reports whether a Redis host was configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// PriceConfig holds market price provider configuration
type PriceConfig struct {
	Provider      types.PriceProviderKind
	BaseURL       string
	Timeout       time.Duration
	RPS           float64
	Burst         int
	CacheTTL      time.Duration
	RetryAttempts int
	// Upstream call quota shared through Redis; QuotaLimit 0 disables it
	QuotaLimit    int
	QuotaReserved int
	QuotaWindow   time.Duration
	// Static prices used by the static provider, keyed by upper-cased symbol
	Static map[string]decimal.Decimal
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	static, err := parseStaticPrices(getEnv("PRICE_STATIC", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Storage: StorageConfig{
			Backend:        types.StorageBackend(strings.ToLower(getEnv("STORAGE_BACKEND", string(types.BackendMemory)))),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations/postgres"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "hexastock"),
				User:           getEnv("POSTGRES_USER", "hexastock"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Price: PriceConfig{
			Provider:      types.PriceProviderKind(strings.ToLower(getEnv("PRICE_PROVIDER", string(types.PriceProviderStatic)))),
			BaseURL:       getEnv("PRICE_BASE_URL", "https://query1.finance.yahoo.com"),
			Timeout:       getEnvAsDuration("PRICE_TIMEOUT", 5*time.Second),
			RPS:           getEnvAsFloat("PRICE_RPS", 2),
			Burst:         getEnvAsInt("PRICE_BURST", 4),
			CacheTTL:      getEnvAsDuration("PRICE_CACHE_TTL", 30*time.Second),
			RetryAttempts: getEnvAsInt("PRICE_RETRY_ATTEMPTS", 3),
			QuotaLimit:    getEnvAsInt("PRICE_QUOTA_LIMIT", 0),
			QuotaReserved: getEnvAsInt("PRICE_QUOTA_RESERVED", 0),
			QuotaWindow:   getEnvAsDuration("PRICE_QUOTA_WINDOW", time.Minute),
			Static:        static,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks that the selected backends have what they need
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case types.BackendMemory:
	case types.BackendPostgres:
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres storage requires POSTGRES_HOST and POSTGRES_DB")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Price.Provider {
	case types.PriceProviderStatic:
	case types.PriceProviderYahoo:
		if c.Price.BaseURL == "" {
			return fmt.Errorf("yahoo price provider requires PRICE_BASE_URL")
		}
	default:
		return fmt.Errorf("unknown PRICE_PROVIDER %q", c.Price.Provider)
	}

	if c.Price.RPS <= 0 || c.Price.Burst <= 0 {
		return fmt.Errorf("PRICE_RPS and PRICE_BURST must be positive")
	}
	if c.Price.RetryAttempts < 1 {
		return fmt.Errorf("PRICE_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Price.Timeout <= 0 {
		return fmt.Errorf("PRICE_TIMEOUT must be positive")
	}
	if c.Price.QuotaLimit < 0 || c.Price.QuotaReserved < 0 {
		return fmt.Errorf("PRICE_QUOTA_LIMIT and PRICE_QUOTA_RESERVED cannot be negative")
	}
	if c.Price.QuotaLimit > 0 && c.Price.QuotaReserved >= c.Price.QuotaLimit {
		return fmt.Errorf("PRICE_QUOTA_RESERVED must be below PRICE_QUOTA_LIMIT")
	}
	if c.Price.QuotaLimit > 0 && !c.Database.Redis.Enabled() {
		return fmt.Errorf("PRICE_QUOTA_LIMIT requires REDIS_HOST")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// PostgresDSN builds a connection string for pgx and golang-migrate
func (c PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// parseStaticPrices parses "AAPL=190.1,MSFT=410"
func parseStaticPrices(raw string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		symbol, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid PRICE_STATIC entry %q: expected SYMBOL=PRICE", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid PRICE_STATIC price for %s: %w", symbol, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("invalid PRICE_STATIC price for %s: negative", symbol)
		}
		prices[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	return prices, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
