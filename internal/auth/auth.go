package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrBearerNotFound = errors.New("bearer token not found")
	ErrUnauthorized   = errors.New("unauthorized")
)

const bearerCacheTTL = 5 * time.Minute

// Caller is the identity a stats request runs as. The zero value is the
// anonymous caller.
type Caller struct {
	UserID uint64
}

// Anonymous is the caller for requests without a bearer token.
var Anonymous = Caller{}

func Authenticated(userID uint64) Caller {
	return Caller{UserID: userID}
}

func (c Caller) IsAnonymous() bool {
	return c.UserID == 0
}

func (c Caller) String() string {
	if c.IsAnonymous() {
		return "anonymous"
	}
	return "user:" + strconv.FormatUint(c.UserID, 10)
}

type Store interface {
	UserIDByBearer(ctx context.Context, tokenHash string) (uint64, error)
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	callerKey        contextKey = "caller"
	bearerPresentKey contextKey = "bearer_present"
	requestIDKey     contextKey = "request_id"
)

// HashBearer returns the hex sha256 of a bearer token, which is what the
// login table and the cache are keyed by.
func HashBearer(token string) string {
	h := sha256.New()
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// NewMiddleware resolves the caller from an optional bearer token. Requests
// without an Authorization header continue as Anonymous; a header that does
// not verify is rejected with 401.
func NewMiddleware(store Store, cache *redis.Client, logger zerolog.Logger) Middleware {
	logger = logger.With().Str("component", "auth").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = WithRequestID(ctx, requestID)
			w.Header().Set("X-Request-ID", requestID)

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ctx = WithCaller(ctx, Anonymous)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx = WithBearerPresent(ctx)
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeUnauthorized(w, "invalid Authorization header")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				writeUnauthorized(w, "invalid Authorization header")
				return
			}

			tokenHash := HashBearer(token)
			redisKey := fmt.Sprintf("auth:bearer:%s", tokenHash)

			userID, err := cache.Get(ctx, redisKey).Uint64()
			if err == nil && userID != 0 {
				ctx = WithCaller(ctx, Authenticated(userID))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			} else if err != nil && !errors.Is(err, redis.Nil) {
				logger.Warn().Err(err).Str("request_id", requestID).Msg("bearer cache lookup failed")
			}

			userID, err = store.UserIDByBearer(ctx, tokenHash)
			if err != nil {
				if errors.Is(err, ErrBearerNotFound) {
					writeUnauthorized(w, "invalid bearer token")
					return
				}
				logger.Error().Err(err).Str("request_id", requestID).Msg("bearer lookup failed")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
				return
			}

			if err := cache.Set(ctx, redisKey, userID, bearerCacheTTL).Err(); err != nil {
				logger.Warn().Err(err).Str("request_id", requestID).Msg("bearer cache store failed")
			}

			ctx = WithCaller(ctx, Authenticated(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized: " + msg})
}

// CallerFrom returns the caller stored by the middleware, or Anonymous.
func CallerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey).(Caller); ok {
		return c
	}
	return Anonymous
}

func BearerPresent(ctx context.Context) bool {
	present, _ := ctx.Value(bearerPresentKey).(bool)
	return present
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func WithBearerPresent(ctx context.Context) context.Context {
	return context.WithValue(ctx, bearerPresentKey, true)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
