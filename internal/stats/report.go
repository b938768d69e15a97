package stats

import (
	"encoding/json"

	"github.com/julioAk47/web3-proxy/internal/auth"
)

// Granularity selects whether per-method rows survive aggregation.
type Granularity int

const (
	Aggregated Granularity = iota
	Detailed
)

func (g Granularity) String() string {
	if g == Detailed {
		return "detailed"
	}
	return "aggregated"
}

// Flag is a boolean stored by the proxy as the strings "true"/"false". Any
// other spelling decodes to FlagError and is reported as "error".
type Flag int

const (
	FlagFalse Flag = iota
	FlagTrue
	FlagError
)

func ParseFlag(s string) Flag {
	switch s {
	case "true":
		return FlagTrue
	case "false":
		return FlagFalse
	default:
		return FlagError
	}
}

func (f Flag) MarshalJSON() ([]byte, error) {
	switch f {
	case FlagTrue:
		return []byte("true"), nil
	case FlagFalse:
		return []byte("false"), nil
	default:
		return []byte(`"error"`), nil
	}
}

// Row is the public projection of one store record. A nil member means the
// record did not carry that field (or carried it with the wrong type) and
// it is left out of the JSON.
type Row struct {
	Collection            *string  `json:"collection,omitempty"`
	Time                  *string  `json:"time,omitempty"`
	StopTime              *string  `json:"stop_time,omitempty"`
	ChainID               *string  `json:"chain_id,omitempty"`
	Method                *string  `json:"method,omitempty"`
	ArchiveNeeded         *Flag    `json:"archive_needed,omitempty"`
	ErrorResponse         *Flag    `json:"error_response,omitempty"`
	TotalBackendRequests  *int64   `json:"total_backend_requests,omitempty"`
	TotalCacheHits        *int64   `json:"total_cache_hits,omitempty"`
	TotalCacheMisses      *int64   `json:"total_cache_misses,omitempty"`
	TotalFrontendRequests *int64   `json:"total_frontend_requests,omitempty"`
	NoServers             *int64   `json:"no_servers,omitempty"`
	TotalCreditsUsed      *float64 `json:"total_credits_used,omitempty"`
	TotalRequestBytes     *int64   `json:"total_request_bytes,omitempty"`
	TotalResponseBytes    *int64   `json:"total_response_bytes,omitempty"`
	TotalResponseMillis   *int64   `json:"total_response_millis,omitempty"`
	RPCKey                *string  `json:"rpc_key,omitempty"`
}

// Envelope is the response body of a stats request.
type Envelope struct {
	NumItems           int     `json:"num_items"`
	Result             []Row   `json:"result"`
	QueryWindowSeconds uint32  `json:"query_window_seconds"`
	QueryStart         int64   `json:"query_start"`
	ChainID            uint64  `json:"chain_id"`
	UserID             *uint64 `json:"user_id,omitempty"`
	RPCKeyID           *uint64 `json:"rpc_key_id,omitempty"`
}

// Assemble wraps decoded rows with the parameters they were queried with.
// user_id is omitted for anonymous callers and rpc_key_id unless the caller
// asked for one.
func Assemble(rows []Row, window Window, chainID uint64, caller auth.Caller, rpcKeyID *uint64) Envelope {
	if rows == nil {
		rows = []Row{}
	}
	env := Envelope{
		NumItems:           len(rows),
		Result:             rows,
		QueryWindowSeconds: window.Seconds,
		QueryStart:         window.Start.Unix(),
		ChainID:            chainID,
	}
	if !caller.IsAnonymous() {
		userID := caller.UserID
		env.UserID = &userID
	}
	if rpcKeyID != nil {
		id := *rpcKeyID
		env.RPCKeyID = &id
	}
	return env
}

// JSON renders the envelope indented, for the CLI.
func (e Envelope) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
