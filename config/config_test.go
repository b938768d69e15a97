package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "postgres://replica:5432/web3_proxy")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8086", cfg.InfluxURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(60), cfg.StatsRateLimitPerMinute)
}

func TestLoad_InfluxSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("INFLUXDB_URL", "http://influx:8086")
	t.Setenv("INFLUXDB_ORG", "llamanodes")
	t.Setenv("INFLUXDB_BUCKET", "web3_proxy")
	t.Setenv("INFLUXDB_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://influx:8086", cfg.InfluxURL)
	assert.Equal(t, "llamanodes", cfg.InfluxOrg)
	assert.Equal(t, "web3_proxy", cfg.InfluxBucket)
	assert.Equal(t, "secret", cfg.InfluxToken)
}

func TestLoad_MissingPostgres(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestLoad_MissingRedis(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://replica:5432/web3_proxy")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("STATS_RATE_LIMIT_PER_MINUTE", "lots")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("STATS_RATE_LIMIT_PER_MINUTE", "0")
	_, err = Load()
	require.Error(t, err)
}
