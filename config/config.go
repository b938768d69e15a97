package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database (read replica holding users, logins, rpc keys and delegations)
	PostgresDSN string

	// Cache
	RedisAddr string

	// Time-series store
	InfluxURL    string // default: http://localhost:8086
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string // may be empty; stats queries then fail as an internal error

	// Observability
	LogLevel             string // default: "info"
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	StatsRateLimitPerMinute int64 // stats requests per caller per minute, default: 60
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		InfluxURL:            getEnv("INFLUXDB_URL", "http://localhost:8086"),
		InfluxToken:          os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:            os.Getenv("INFLUXDB_ORG"),
		InfluxBucket:         os.Getenv("INFLUXDB_BUCKET"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	rpmStr := getEnv("STATS_RATE_LIMIT_PER_MINUTE", "60")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if rpm <= 0 {
		return nil, fmt.Errorf("STATS_RATE_LIMIT_PER_MINUTE must be positive, got %d", rpm)
	}
	cfg.StatsRateLimitPerMinute = rpm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
