package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment          string
	ServerPort           int
	DatabaseHost         string
	DatabasePort         int
	DatabaseUser         string
	DatabasePassword     string
	DatabaseName         string
	DatabaseSSLMode      string
	RedisURL             string
	JWTSecret            string
	LogLevel             string
	CORSAllowedOrigins   []string
	SweepIntervalMinutes int
	RateLimitPerMinute   int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present, so development setups do
// not need to export everything by hand.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	sweepInterval, err := strconv.Atoi(getEnv("SWEEP_INTERVAL_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	return &Config{
		Environment:          getEnv("ENVIRONMENT", "development"),
		ServerPort:           port,
		DatabaseHost:         getEnv("DB_HOST", "localhost"),
		DatabasePort:         dbPort,
		DatabaseUser:         getEnv("DB_USER", "librarian"),
		DatabasePassword:     getEnv("DB_PASSWORD", "dev"),
		DatabaseName:         getEnv("DB_NAME", "librarian"),
		DatabaseSSLMode:      getEnv("DB_SSLMODE", "disable"),
		RedisURL:             getEnv("REDIS_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins:   parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		SweepIntervalMinutes: sweepInterval,
		RateLimitPerMinute:   rateLimit,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
