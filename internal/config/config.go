// Package config provides configuration management for the ADR pipeline.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Pipeline  PipelineConfig
	Scraper   ScraperConfig
	Directory DirectoryConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
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
	RunStatusTTL   time.Duration
}

// ClickHouseConfig holds the execution audit sink configuration.
// Leaving Host empty disables the sink.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// PipelineConfig holds the orchestration engine tunables
type PipelineConfig struct {
	MaxParallelRequests int           // concurrent outbound calls per step
	CredentialLeadDays  int           // lead-time window for credential checks
	MaxRetries          int           // per-job status-check retry budget
	RetryDelay          time.Duration // minimum interval between status checks
	MissingGraceDays    int           // grace period before a due account is labelled Missing
}

// ScraperConfig holds the external scraping service client configuration
type ScraperConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
}

// DirectoryConfig holds the external account directory client configuration
type DirectoryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SchedulerConfig holds the cycle trigger configuration
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
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

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "adr_pipeline"),
				User:           getEnv("POSTGRES_USER", "adr"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
				RunStatusTTL:   getEnvAsDuration("REDIS_RUN_STATUS_TTL", 15*time.Second),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "adr_audit"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Pipeline: PipelineConfig{
			MaxParallelRequests: getEnvAsInt("ADR_MAX_PARALLEL_REQUESTS", 8),
			CredentialLeadDays:  getEnvAsInt("ADR_CREDENTIAL_LEAD_DAYS", 7),
			MaxRetries:          getEnvAsInt("ADR_MAX_RETRIES", 10),
			RetryDelay:          time.Duration(getEnvAsInt("ADR_RETRY_DELAY_MINUTES", 60)) * time.Minute,
			MissingGraceDays:    getEnvAsInt("ADR_MISSING_GRACE_DAYS", 14),
		},
		Scraper: ScraperConfig{
			BaseURL:        getEnv("SCRAPER_BASE_URL", "http://localhost:9300"),
			APIKey:         getEnv("SCRAPER_API_KEY", ""),
			Timeout:        getEnvAsDuration("SCRAPER_TIMEOUT", 30*time.Second),
			RequestsPerSec: getEnvAsFloat("SCRAPER_REQUESTS_PER_SEC", 5.0),
		},
		Directory: DirectoryConfig{
			BaseURL: getEnv("DIRECTORY_BASE_URL", "http://localhost:9400"),
			APIKey:  getEnv("DIRECTORY_API_KEY", ""),
			Timeout: getEnvAsDuration("DIRECTORY_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvAsBool("SCHEDULER_ENABLED", false),
			Interval: getEnvAsDuration("SCHEDULER_INTERVAL", 6*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
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

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
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
