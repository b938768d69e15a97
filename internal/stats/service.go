package stats

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/keys"
	"github.com/julioAk47/web3-proxy/internal/metrics"
)

// Querier runs a Flux query against the time-series store.
type Querier interface {
	Query(ctx context.Context, flux string) ([]Record, error)
}

// ScopeResolver returns the keys a user may read usage for.
type ScopeResolver interface {
	Resolve(ctx context.Context, userID uint64) (keys.Scope, error)
}

// Request is one usage stats query. Params is the raw query string,
// one value per name.
type Request struct {
	Caller        auth.Caller
	BearerPresent bool
	Granularity   Granularity
	Params        map[string]string
}

type Service struct {
	scopes  ScopeResolver
	store   Querier
	bucket  string
	logger  zerolog.Logger
	tracer  trace.Tracer
	metrics *metrics.Collector
	now     func() time.Time
}

func NewService(scopes ScopeResolver, store Querier, bucket string, logger zerolog.Logger, tracer trace.Tracer, m *metrics.Collector) *Service {
	return &Service{
		scopes:  scopes,
		store:   store,
		bucket:  bucket,
		logger:  logger.With().Str("component", "stats").Logger(),
		tracer:  tracer,
		metrics: m,
		now:     time.Now,
	}
}

// Query answers a usage stats request. Returned errors are *Error values;
// use KindOf to map them onto a response.
func (s *Service) Query(ctx context.Context, req Request) (*Envelope, error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "stats.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("stats.granularity", req.Granularity.String()),
		attribute.String("stats.caller", req.Caller.String()),
		attribute.Int64("stats.user_id", int64(req.Caller.UserID)),
	)

	env, err := s.query(ctx, span, req)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if KindOf(err) == KindInternal {
			s.logger.Error().Err(err).
				Str("request_id", auth.RequestID(ctx)).
				Uint64("user_id", req.Caller.UserID).
				Str("granularity", req.Granularity.String()).
				Msg("stats query failed")
		}
	} else {
		span.SetAttributes(attribute.Int("stats.num_items", env.NumItems))
	}
	s.metrics.RecordStatsRequest(req.Granularity.String(), outcome, s.now().Sub(started))
	return env, err
}

func (s *Service) query(ctx context.Context, span trace.Span, req Request) (*Envelope, error) {
	// A bearer that did not resolve to a user must never fall back to the
	// anonymous view.
	if req.BearerPresent && req.Caller.IsAnonymous() {
		return nil, Unauthorized("bearer token did not resolve to a user")
	}
	if req.Granularity == Detailed && req.Caller.IsAnonymous() {
		return nil, BadRequest("detailed stats require an authenticated user")
	}
	if s.scopes == nil || s.store == nil {
		return nil, Internal("stats backends are not configured", nil)
	}

	params, err := parseParams(req.Params, s.now())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("stats.chain_id", int64(params.chainID)))
	scope, err := s.scopes.Resolve(ctx, req.Caller.UserID)
	if err != nil {
		if errors.Is(err, keys.ErrNoVisibleKeys) {
			return nil, BadRequest("no visible keys")
		}
		return nil, Internal("resolving key scope", err)
	}
	// The global series carries no per-key breakdown a caller may see, so an
	// anonymous rpc_key_id is only echoed back.
	if params.rpcKeyID != nil && !req.Caller.IsAnonymous() {
		restricted, ok := scope.Restrict(*params.rpcKeyID)
		if !ok {
			return nil, BadRequest("rpc_key_id is not one of your visible keys")
		}
		scope = restricted
	}
	span.SetAttributes(attribute.Int("stats.visible_keys", len(scope.KeyIDs())))

	if s.bucket == "" {
		return nil, Internal("no influxdb bucket configured", nil)
	}
	flux, err := BuildQuery(QueryParams{
		Bucket:      s.bucket,
		Window:      params.window,
		ChainID:     params.chainID,
		Granularity: req.Granularity,
		Caller:      req.Caller,
		Scope:       scope,
	})
	if err != nil {
		return nil, Internal("building query", err)
	}
	s.logger.Debug().Str("request_id", auth.RequestID(ctx)).Str("flux", flux).Msg("running stats query")

	queryStarted := s.now()
	records, err := s.store.Query(ctx, flux)
	if err != nil {
		s.metrics.RecordStoreQuery("error", s.now().Sub(queryStarted))
		return nil, Internal("querying influxdb", err)
	}
	s.metrics.RecordStoreQuery("ok", s.now().Sub(queryStarted))

	rows, err := Decode(records, req.Granularity, scope, s.warn(ctx))
	if err != nil {
		return nil, Internal("decoding stats records", err)
	}

	env := Assemble(rows, params.window, params.chainID, req.Caller, params.rpcKeyID)
	return &env, nil
}

func (s *Service) warn(ctx context.Context) WarnFunc {
	return func(field string, want Tag, got Value) {
		s.metrics.RecordDecodeWarning(field)
		s.logger.Warn().
			Str("request_id", auth.RequestID(ctx)).
			Str("field", field).
			Stringer("expected", want).
			Stringer("got", got.Tag()).
			Str("value", got.String()).
			Msg("dropping field with unexpected type")
	}
}
