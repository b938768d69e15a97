// Package api serves usage stats over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/metrics"
	"github.com/julioAk47/web3-proxy/internal/stats"
	"github.com/julioAk47/web3-proxy/pkg/ratelimit"
)

// StatsService answers usage stats requests.
type StatsService interface {
	Query(ctx context.Context, req stats.Request) (*stats.Envelope, error)
}

type Handler struct {
	stats   StatsService
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
	metrics *metrics.Collector
	logger  zerolog.Logger
}

func NewHandler(svc StatsService, limiter *ratelimit.Limiter, tracer trace.Tracer, m *metrics.Collector, logger zerolog.Logger) *Handler {
	return &Handler{
		stats:   svc,
		limiter: limiter,
		tracer:  tracer,
		metrics: m,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) HandleAggregateStats(w http.ResponseWriter, r *http.Request) {
	h.serveStats(w, r, stats.Aggregated)
}

func (h *Handler) HandleDetailedStats(w http.ResponseWriter, r *http.Request) {
	h.serveStats(w, r, stats.Detailed)
}

func (h *Handler) serveStats(w http.ResponseWriter, r *http.Request, granularity stats.Granularity) {
	ctx, span := h.tracer.Start(r.Context(), "api.stats")
	defer span.End()

	caller := auth.CallerFrom(ctx)
	span.SetAttributes(
		attribute.String("request_id", auth.RequestID(ctx)),
		attribute.String("caller", caller.String()),
		attribute.String("granularity", granularity.String()),
	)

	if !h.allow(ctx, w, r, caller) {
		return
	}

	env, err := h.stats.Query(ctx, stats.Request{
		Caller:        caller,
		BearerPresent: auth.BearerPresent(ctx),
		Granularity:   granularity,
		Params:        queryParams(r),
	})
	if err != nil {
		writeStatsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, env)
}

// allow spends one rate limit token for the caller. Anonymous callers are
// limited per client address.
func (h *Handler) allow(ctx context.Context, w http.ResponseWriter, r *http.Request, caller auth.Caller) bool {
	if h.limiter == nil {
		return true
	}

	subject, kind := caller.String(), "user"
	if caller.IsAnonymous() {
		subject, kind = "ip:"+clientIP(r), "anonymous"
	}

	res, err := h.limiter.Allow(ctx, subject)
	if err != nil {
		h.logger.Error().Err(err).Str("subject", subject).Msg("rate limiter failed")
	}
	if err != nil || !res.Allowed {
		h.metrics.RecordRateLimited(kind)
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return false
	}
	return true
}

// queryParams flattens the query string, keeping the first value of each
// repeated parameter.
func queryParams(r *http.Request) map[string]string {
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for name, vs := range values {
		if len(vs) > 0 {
			params[name] = vs[0]
		}
	}
	return params
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeStatsError maps the stats error taxonomy onto HTTP. Internal errors
// were already logged with their cause and are returned opaquely.
func writeStatsError(w http.ResponseWriter, err error) {
	switch stats.KindOf(err) {
	case stats.KindBadRequest:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case stats.KindUnauthorized:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized: " + err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
