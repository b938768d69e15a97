package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/keys"
	"github.com/julioAk47/web3-proxy/internal/metrics"
	"github.com/julioAk47/web3-proxy/internal/stats"
)

const validBearer = "0d3c7b5e-8f51-4a1f-9d6b-4c1e2f3a4b5c"

type fakeAuthStore struct{}

func (fakeAuthStore) UserIDByBearer(ctx context.Context, tokenHash string) (uint64, error) {
	if tokenHash == auth.HashBearer(validBearer) {
		return 7, nil
	}
	return 0, auth.ErrBearerNotFound
}

type fakeKeyStore struct {
	key keys.Key
}

func (s fakeKeyStore) OwnedKeys(ctx context.Context, userID uint64) ([]keys.Key, error) {
	if userID == 7 {
		return []keys.Key{s.key}, nil
	}
	return nil, nil
}

func (s fakeKeyStore) DelegatedKeys(ctx context.Context, userID uint64) ([]keys.Delegation, error) {
	return nil, nil
}

type fakeInflux struct {
	queries []string
}

func (f *fakeInflux) Query(ctx context.Context, flux string) ([]stats.Record, error) {
	f.queries = append(f.queries, flux)
	return []stats.Record{{
		"_time":             stats.Time(time.Unix(1300, 0)),
		"rpc_secret_key_id": stats.String("3"),
		"frontend_requests": stats.Long(5),
		"archive_needed":    stats.String("false"),
		"error_response":    stats.String("false"),
	}}, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	srv    *httptest.Server
	influx *fakeInflux
	key    keys.Key
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zerolog.New(io.Discard)
	tracer := noop.NewTracerProvider().Tracer("test")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	key := keys.Key{ID: 3, UserID: 7, Secret: uuid.MustParse("0189b1f0-6c4e-7a2b-9c1d-111111111111")}
	influx := &fakeInflux{}
	svc := stats.NewService(keys.NewResolver(fakeKeyStore{key: key}, logger), influx, "dev_web3_proxy", logger, tracer, m)

	router := NewRouter(RouterConfig{
		Handler:  NewHandler(svc, nil, tracer, m, logger),
		Auth:     auth.NewMiddleware(fakeAuthStore{}, rdb, logger),
		Gatherer: reg,
		Ready: map[string]Pinger{
			"influxdb": pingFunc(func(ctx context.Context) error { return nil }),
		},
		Logger: logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, influx: influx, key: key}
}

func (ts *testServer) get(t *testing.T, path, bearer string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestRouter_AuthenticatedAggregate(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/user/stats/aggregate?query_start=1000&query_stop=2000&query_window_seconds=300&chain_id=1", validBearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	assert.Equal(t, float64(1), body["num_items"])
	assert.Equal(t, float64(7), body["user_id"])
	assert.Equal(t, float64(1), body["chain_id"])
	assert.Equal(t, float64(300), body["query_window_seconds"])
	assert.Equal(t, float64(1000), body["query_start"])

	row := body["result"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(5), row["total_frontend_requests"])
	assert.Equal(t, false, row["archive_needed"])
	assert.Equal(t, ts.key.Display(), row["rpc_key"])

	require.Len(t, ts.influx.queries, 1)
	assert.Contains(t, ts.influx.queries[0], `set: ["3"]`)
}

func TestRouter_AnonymousAggregate(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/user/stats/aggregate?query_start=1000&query_stop=2000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "user_id")

	row := body["result"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, row, "rpc_key")
	assert.Contains(t, ts.influx.queries[0], "global_proxy")
}

func TestRouter_InvalidBearerIsRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/user/stats/aggregate", "not-a-real-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized: invalid bearer token", body["error"])
	assert.Empty(t, ts.influx.queries)
}

func TestRouter_DetailedNeedsUser(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.get(t, "/user/stats/detailed", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.get(t, "/user/stats/detailed?query_start=1000&query_stop=2000", validBearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, ts.influx.queries[0], `drop(columns: ["method"])`)
}

func TestRouter_MalformedKeyID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/user/stats/aggregate?rpc_key_id=abc", validBearer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unable to parse rpc_key_id", body["error"])
	assert.Empty(t, ts.influx.queries)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = ts.get(t, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["influxdb"])

	ts.get(t, "/user/stats/aggregate?query_start=1000&query_stop=2000", "")

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `web3_proxy_stats_requests_total{granularity="aggregated",outcome="ok"} 1`)
}

func TestReadiness_Failing(t *testing.T) {
	var logs bytes.Buffer
	h := readiness(map[string]Pinger{
		"postgres": pingFunc(func(ctx context.Context) error {
			return errors.New("dial tcp 10.1.2.3:5432: connection refused")
		}),
		"redis": pingFunc(func(ctx context.Context) error { return nil }),
	}, zerolog.New(&logs))
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["postgres"])
	assert.Equal(t, "ok", body["redis"])
	assert.NotContains(t, w.Body.String(), "10.1.2.3")
	assert.Contains(t, logs.String(), "10.1.2.3:5432")
}
