package stats

import (
	"fmt"
	"strconv"
	"time"

	"github.com/julioAk47/web3-proxy/internal/keys"
)

// Measurements written by the proxy.
const (
	MeasurementGlobal = "global_proxy"
	MeasurementOptIn  = "opt_in_proxy"
)

// WarnFunc is told about a field dropped because its tag was not the one
// expected. The rest of the record still decodes.
type WarnFunc func(field string, want Tag, got Value)

type fieldRule struct {
	tag          Tag
	detailedOnly bool
	set          func(row *Row, v Value, scope keys.Scope) error
}

// recordFields maps store column names to the row member they fill. Columns
// not listed here (result, table, _start, _field, balance, ...) are ignored.
var recordFields = map[string]fieldRule{
	"_measurement": {tag: TagString, set: func(row *Row, v Value, _ keys.Scope) error {
		row.Collection = ptr(collectionName(v.Str()))
		return nil
	}},
	"_time": timeField(func(r *Row) **string { return &r.Time }),
	"_stop": timeField(func(r *Row) **string { return &r.StopTime }),
	"chain_id": {tag: TagString, set: func(row *Row, v Value, _ keys.Scope) error {
		row.ChainID = ptr(v.Str())
		return nil
	}},
	"method": {tag: TagString, detailedOnly: true, set: func(row *Row, v Value, _ keys.Scope) error {
		row.Method = ptr(v.Str())
		return nil
	}},
	"archive_needed": flagField(func(r *Row) **Flag { return &r.ArchiveNeeded }),
	"error_response": flagField(func(r *Row) **Flag { return &r.ErrorResponse }),

	"backend_requests":    longField(func(r *Row) **int64 { return &r.TotalBackendRequests }),
	"cache_hits":          longField(func(r *Row) **int64 { return &r.TotalCacheHits }),
	"cache_misses":        longField(func(r *Row) **int64 { return &r.TotalCacheMisses }),
	"frontend_requests":   longField(func(r *Row) **int64 { return &r.TotalFrontendRequests }),
	"no_servers":          longField(func(r *Row) **int64 { return &r.NoServers }),
	"sum_request_bytes":   longField(func(r *Row) **int64 { return &r.TotalRequestBytes }),
	"sum_response_bytes":  longField(func(r *Row) **int64 { return &r.TotalResponseBytes }),
	"sum_response_millis": longField(func(r *Row) **int64 { return &r.TotalResponseMillis }),
	"sum_credits_used": {tag: TagDouble, set: func(row *Row, v Value, _ keys.Scope) error {
		row.TotalCreditsUsed = ptr(v.Float())
		return nil
	}},

	"rpc_secret_key_id": {tag: TagString, set: setRPCKey},
}

func longField(dst func(*Row) **int64) fieldRule {
	return fieldRule{tag: TagLong, set: func(row *Row, v Value, _ keys.Scope) error {
		*dst(row) = ptr(v.Int())
		return nil
	}}
}

func flagField(dst func(*Row) **Flag) fieldRule {
	return fieldRule{tag: TagString, set: func(row *Row, v Value, _ keys.Scope) error {
		*dst(row) = ptr(ParseFlag(v.Str()))
		return nil
	}}
}

func timeField(dst func(*Row) **string) fieldRule {
	return fieldRule{tag: TagTime, set: func(row *Row, v Value, _ keys.Scope) error {
		*dst(row) = ptr(v.Timestamp().UTC().Format(time.RFC3339))
		return nil
	}}
}

func collectionName(measurement string) string {
	switch measurement {
	case MeasurementOptIn:
		return "opt-in"
	case MeasurementGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// setRPCKey swaps the numeric key id for its display secret. Under an
// unrestricted scope there is nothing the caller may see, so the column is
// dropped; under a restricted one an id outside the scope means the query
// filter and the scope disagree.
func setRPCKey(row *Row, v Value, scope keys.Scope) error {
	if scope.IsUnrestricted() {
		return nil
	}
	id, err := strconv.ParseUint(v.Str(), 10, 64)
	if err != nil {
		return fmt.Errorf("rpc_secret_key_id %q is not numeric: %w", v.Str(), err)
	}
	display, ok := scope.Display(id)
	if !ok {
		return fmt.Errorf("rpc_secret_key_id %d is not in the resolved key scope", id)
	}
	row.RPCKey = ptr(display)
	return nil
}

// Decode projects raw store records into report rows. A field with an
// unexpected tag is dropped and reported to warn; only a key id that cannot
// be mapped back through scope fails the whole decode.
func Decode(records []Record, granularity Granularity, scope keys.Scope, warn WarnFunc) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		var row Row
		for name, v := range rec {
			rule, ok := recordFields[name]
			if !ok {
				continue
			}
			if rule.detailedOnly && granularity != Detailed {
				continue
			}
			if v.Tag() != rule.tag {
				if warn != nil {
					warn(name, rule.tag, v)
				}
				continue
			}
			if err := rule.set(&row, v, scope); err != nil {
				return nil, err
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func ptr[T any](v T) *T {
	return &v
}
