package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/julioAk47/web3-proxy/internal/api"
	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/database"
	"github.com/julioAk47/web3-proxy/internal/telemetry"
	"github.com/julioAk47/web3-proxy/pkg/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stats HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = runServe
}

type redisPinger struct {
	ping func(ctx context.Context) error
}

func (p redisPinger) Ping(ctx context.Context) error { return p.ping(ctx) }

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	authMiddleware := auth.NewMiddleware(auth.NewPostgresStore(a.pool), a.rdb, logger)
	limiter := ratelimit.NewLimiter(a.rdb, int(cfg.StatsRateLimitPerMinute))
	tracer := otel.GetTracerProvider().Tracer(telemetry.ServiceName)
	handler := api.NewHandler(a.stats, limiter, tracer, a.metrics, logger)

	router := api.NewRouter(api.RouterConfig{
		Handler:  handler,
		Auth:     authMiddleware,
		Gatherer: prometheus.DefaultGatherer,
		Ready: map[string]api.Pinger{
			"postgres": database.Pinger{Pool: a.pool},
			"redis":    redisPinger{ping: func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }},
			"influxdb": a.influx,
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("stats API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	logger.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
