package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/julioAk47/web3-proxy/config"
	"github.com/julioAk47/web3-proxy/internal/database"
	"github.com/julioAk47/web3-proxy/internal/influx"
	"github.com/julioAk47/web3-proxy/internal/keys"
	"github.com/julioAk47/web3-proxy/internal/metrics"
	"github.com/julioAk47/web3-proxy/internal/stats"
	"github.com/julioAk47/web3-proxy/internal/telemetry"
)

// app holds the backends shared by serve and stats.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
	influx  *influx.Client
	metrics *metrics.Collector
	stats   *stats.Service
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// 1. Init telemetry
	shutdownTracer, err := telemetry.InitTracer(telemetry.ServiceName, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	// 2. Connect PostgreSQL
	a.pool, err = database.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.pool.Close)
	logger.Info().Msg("PostgreSQL connected")

	// 3. Connect Redis
	a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	a.closers = append(a.closers, func() { _ = a.rdb.Close() })
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info().Msg("Redis connected")

	// 4. InfluxDB
	a.influx = influx.NewClient(influx.Options{
		URL:   cfg.InfluxURL,
		Token: cfg.InfluxToken,
		Org:   cfg.InfluxOrg,
	}, logger)
	a.closers = append(a.closers, a.influx.Close)
	if err := a.influx.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("url", cfg.InfluxURL).Msg("InfluxDB not reachable yet")
	}

	// 5. Stats service
	a.metrics = metrics.New(prometheus.DefaultRegisterer)
	resolver := keys.NewResolver(keys.NewPostgresStore(a.pool), logger)
	tracer := otel.GetTracerProvider().Tracer(telemetry.ServiceName)
	a.stats = stats.NewService(resolver, a.influx, cfg.InfluxBucket, logger, tracer, a.metrics)

	return a, nil
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
