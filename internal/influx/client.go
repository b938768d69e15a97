// Package influx runs stats queries against InfluxDB 2.x.
package influx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/julioAk47/web3-proxy/internal/stats"
)

var ErrUnavailable = errors.New("influxdb unavailable")

const defaultQueryTimeout = 30 * time.Second

// Client is a stats.Querier backed by an InfluxDB query API. Consecutive
// failures open a circuit so a dead store fails requests fast.
type Client struct {
	client  influxdb2.Client
	queries api.QueryAPI
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

type Options struct {
	URL   string
	Token string
	Org   string
	// QueryTimeout bounds every HTTP request to the store. Zero means 30s.
	QueryTimeout time.Duration
}

func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	c := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(timeout/time.Second)))
	return newClient(c, c.QueryAPI(opts.Org), logger)
}

func newClient(c influxdb2.Client, queries api.QueryAPI, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "influx").Logger()
	settings := gobreaker.Settings{
		Name:        "influxdb",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// A caller that went away says nothing about the store's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		},
	}
	return &Client{
		client:  c,
		queries: queries,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Query runs flux and returns every record of every result table.
func (c *Client) Query(ctx context.Context, flux string) ([]stats.Record, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		records, err := c.query(ctx, flux)
		if err != nil && ctx.Err() != nil {
			// The client library does not always wrap the context error.
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return records, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return out.([]stats.Record), nil
}

func (c *Client) query(ctx context.Context, flux string) ([]stats.Record, error) {
	result, err := c.queries.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influxdb query: %w", err)
	}
	defer result.Close()

	records := []stats.Record{}
	for result.Next() {
		records = append(records, convertRecord(result.Record().Values(), c.logger))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading influxdb result: %w", err)
	}
	return records, nil
}

// Ping reports whether the store answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("pinging influxdb: %w", err)
	}
	if !ok {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) Close() {
	c.client.Close()
}

// convertRecord maps the client's decoded annotated-CSV values onto tagged
// stats values. Null cells and types the stats pipeline never reads are
// left out.
func convertRecord(values map[string]interface{}, logger zerolog.Logger) stats.Record {
	rec := make(stats.Record, len(values))
	for name, raw := range values {
		v, ok := convertValue(raw)
		if !ok {
			if raw != nil {
				logger.Debug().Str("field", name).Str("type", fmt.Sprintf("%T", raw)).Msg("skipping unsupported column type")
			}
			continue
		}
		rec[name] = v
	}
	return rec
}

func convertValue(raw interface{}) (stats.Value, bool) {
	switch v := raw.(type) {
	case string:
		return stats.String(v), true
	case int64:
		return stats.Long(v), true
	case uint64:
		return stats.UnsignedLong(v), true
	case float64:
		return stats.Double(v), true
	case bool:
		return stats.Bool(v), true
	case time.Time:
		return stats.Time(v), true
	default:
		return stats.Value{}, false
	}
}
