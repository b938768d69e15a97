package stats

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julioAk47/web3-proxy/internal/keys"
)

var (
	ownedKey     = keys.Key{ID: 3, UserID: 7, Secret: uuid.MustParse("0189b1f0-6c4e-7a2b-9c1d-111111111111")}
	delegatedKey = keys.Key{ID: 9, UserID: 8, Secret: uuid.MustParse("0189b1f0-6c4e-7a2b-9c1d-222222222222")}
)

type warning struct {
	field string
	want  Tag
	got   Tag
}

func collectWarnings(dst *[]warning) WarnFunc {
	return func(field string, want Tag, got Value) {
		*dst = append(*dst, warning{field: field, want: want, got: got.Tag()})
	}
}

func TestDecode_AuthenticatedRecord(t *testing.T) {
	scope := scopeFor(t, ownedKey, delegatedKey)
	records := []Record{{
		"_time":             Time(time.Unix(1300, 0)),
		"_measurement":      String(MeasurementOptIn),
		"chain_id":          String("1"),
		"rpc_secret_key_id": String("3"),
		"frontend_requests": Long(5),
		"archive_needed":    String("false"),
		"error_response":    String("false"),
	}}

	var warnings []warning
	rows, err := Decode(records, Aggregated, scope, collectWarnings(&warnings))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, warnings)

	row := rows[0]
	require.NotNil(t, row.TotalFrontendRequests)
	assert.Equal(t, int64(5), *row.TotalFrontendRequests)
	assert.Equal(t, FlagFalse, *row.ArchiveNeeded)
	assert.Equal(t, FlagFalse, *row.ErrorResponse)
	assert.Equal(t, ownedKey.Display(), *row.RPCKey)
	assert.Equal(t, "1", *row.ChainID)
	assert.Equal(t, "opt-in", *row.Collection)
	assert.Equal(t, "1970-01-01T00:21:40Z", *row.Time)
	assert.Nil(t, row.Method)
}

func TestDecode_TagMismatchDropsOnlyThatField(t *testing.T) {
	records := []Record{{
		"frontend_requests": Double(5),
		"backend_requests":  Long(4),
		"sum_credits_used":  Double(1.5),
	}}

	var warnings []warning
	rows, err := Decode(records, Aggregated, keys.Unrestricted(), collectWarnings(&warnings))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Nil(t, rows[0].TotalFrontendRequests)
	assert.Equal(t, int64(4), *rows[0].TotalBackendRequests)
	assert.Equal(t, 1.5, *rows[0].TotalCreditsUsed)
	assert.Equal(t, []warning{{field: "frontend_requests", want: TagLong, got: TagDouble}}, warnings)
}

func TestDecode_NilWarnFunc(t *testing.T) {
	rows, err := Decode([]Record{{"cache_hits": String("x")}}, Aggregated, keys.Unrestricted(), nil)
	require.NoError(t, err)
	assert.Nil(t, rows[0].TotalCacheHits)
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	rows, err := Decode([]Record{{
		"result":  String("_result"),
		"table":   Long(0),
		"_start":  Time(time.Unix(1000, 0)),
		"balance": Double(12),
	}}, Aggregated, keys.Unrestricted(), nil)
	require.NoError(t, err)
	assert.Equal(t, Row{}, rows[0])
}

func TestDecode_MethodOnlyWhenDetailed(t *testing.T) {
	records := []Record{{"method": String("eth_call")}}

	rows, err := Decode(records, Aggregated, keys.Unrestricted(), nil)
	require.NoError(t, err)
	assert.Nil(t, rows[0].Method)

	rows, err = Decode(records, Detailed, keys.Unrestricted(), nil)
	require.NoError(t, err)
	require.NotNil(t, rows[0].Method)
	assert.Equal(t, "eth_call", *rows[0].Method)
}

func TestDecode_Flags(t *testing.T) {
	rows, err := Decode([]Record{{
		"archive_needed": String("true"),
		"error_response": String("maybe"),
	}}, Aggregated, keys.Unrestricted(), nil)
	require.NoError(t, err)
	assert.Equal(t, FlagTrue, *rows[0].ArchiveNeeded)
	assert.Equal(t, FlagError, *rows[0].ErrorResponse)
}

func TestDecode_Collections(t *testing.T) {
	for measurement, want := range map[string]string{
		MeasurementGlobal: "global",
		MeasurementOptIn:  "opt-in",
		"something_else":  "unknown",
	} {
		rows, err := Decode([]Record{{"_measurement": String(measurement)}}, Aggregated, keys.Unrestricted(), nil)
		require.NoError(t, err)
		assert.Equal(t, want, *rows[0].Collection, measurement)
	}
}

func TestDecode_KeyOutsideScopeFails(t *testing.T) {
	scope := scopeFor(t, ownedKey)
	_, err := Decode([]Record{{"rpc_secret_key_id": String("42")}}, Aggregated, scope, nil)
	assert.Error(t, err)

	_, err = Decode([]Record{{"rpc_secret_key_id": String("three")}}, Aggregated, scope, nil)
	assert.Error(t, err)
}

func TestDecode_UnrestrictedDropsKeyColumn(t *testing.T) {
	rows, err := Decode([]Record{{"rpc_secret_key_id": String("42")}}, Aggregated, keys.Unrestricted(), nil)
	require.NoError(t, err)
	assert.Nil(t, rows[0].RPCKey)
}

func TestDecode_Empty(t *testing.T) {
	rows, err := Decode(nil, Aggregated, keys.Unrestricted(), nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
