// Package metrics provides Prometheus metrics for the stats service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the stats service metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	StatsRequests      *prometheus.CounterVec
	StatsDuration      *prometheus.HistogramVec
	DecodeWarnings     *prometheus.CounterVec
	StoreQueryDuration *prometheus.HistogramVec
	RateLimited        *prometheus.CounterVec
}

// New creates a collector registered with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		StatsRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "web3_proxy",
				Name:      "stats_requests_total",
				Help:      "Usage stats requests by granularity and outcome",
			},
			[]string{"granularity", "outcome"},
		),
		StatsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "web3_proxy",
				Name:      "stats_request_duration_seconds",
				Help:      "Time to answer a usage stats request",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"granularity"},
		),
		DecodeWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "web3_proxy",
				Name:      "stats_decode_warnings_total",
				Help:      "Store fields dropped because their type tag was unexpected",
			},
			[]string{"field"},
		),
		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "web3_proxy",
				Name:      "influxdb_query_duration_seconds",
				Help:      "Time spent in time-series store queries",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "web3_proxy",
				Name:      "stats_rate_limited_total",
				Help:      "Stats requests rejected by the rate limiter",
			},
			[]string{"caller"},
		),
	}
}

func (c *Collector) RecordStatsRequest(granularity, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.StatsRequests.WithLabelValues(granularity, outcome).Inc()
	c.StatsDuration.WithLabelValues(granularity).Observe(d.Seconds())
}

func (c *Collector) RecordDecodeWarning(field string) {
	if c == nil {
		return
	}
	c.DecodeWarnings.WithLabelValues(field).Inc()
}

func (c *Collector) RecordStoreQuery(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.StoreQueryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordRateLimited counts a rejected request; callerKind is "anonymous" or
// "user" to keep cardinality bounded.
func (c *Collector) RecordRateLimited(callerKind string) {
	if c == nil {
		return
	}
	c.RateLimited.WithLabelValues(callerKind).Inc()
}
