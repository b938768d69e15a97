package stats

import (
	"math"
	"strconv"
	"time"
)

const defaultQueryRange = 30 * 24 * time.Hour

// Window is the half-open range [Start, Stop) bucketed every Seconds.
type Window struct {
	Start   time.Time
	Stop    time.Time
	Seconds uint32
}

type queryParams struct {
	window   Window
	chainID  uint64
	rpcKeyID *uint64
}

// parseParams reads the stats query string. Times are unix seconds; a
// missing query_start means thirty days before now, a missing query_stop
// means now, and a missing query_window_seconds buckets the whole range at
// once.
func parseParams(params map[string]string, now time.Time) (queryParams, error) {
	var p queryParams

	stop := now
	if raw, ok := params["query_stop"]; ok {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return p, BadRequest("Unable to parse query_stop")
		}
		stop = time.Unix(ts, 0)
	}

	start := now.Add(-defaultQueryRange)
	if raw, ok := params["query_start"]; ok {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return p, BadRequest("Unable to parse query_start")
		}
		start = time.Unix(ts, 0)
	}

	start, stop = start.UTC().Truncate(time.Second), stop.UTC().Truncate(time.Second)
	if start.Equal(stop) {
		return p, BadRequest("Start and Stop date cannot be equal. Please specify a (different) start date.")
	}
	if stop.Before(start) {
		return p, BadRequest("query_stop must be after query_start")
	}

	var seconds uint32
	if raw, ok := params["query_window_seconds"]; ok {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return p, BadRequest("Unable to parse query_window_seconds")
		}
		if v == 0 {
			return p, BadRequest("query_window_seconds must be greater than zero")
		}
		seconds = uint32(v)
	} else {
		span := int64(stop.Sub(start) / time.Second)
		if span > math.MaxUint32 {
			return p, BadRequest("query range is too large for a single window; set query_window_seconds")
		}
		seconds = uint32(span)
	}
	p.window = Window{Start: start, Stop: stop, Seconds: seconds}

	if raw, ok := params["chain_id"]; ok && raw != "" {
		chainID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return p, BadRequest("Unable to parse chain_id")
		}
		p.chainID = chainID
	}

	if raw, ok := params["rpc_key_id"]; ok {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return p, BadRequest("Unable to parse rpc_key_id")
		}
		p.rpcKeyID = &id
	}

	return p, nil
}
