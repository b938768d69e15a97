package stats

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/julioAk47/web3-proxy/internal/auth"
	"github.com/julioAk47/web3-proxy/internal/keys"
)

var (
	groupColumns = []string{
		"_time", "_measurement", "archive_needed", "chain_id", "error_response", "method", "rpc_secret_key_id",
	}
	cumulativeColumns = []string{
		"backend_requests", "cache_hits", "cache_misses", "frontend_requests",
		"sum_credits_used", "sum_request_bytes", "sum_response_bytes", "sum_response_millis",
	}
	// frontend_requests picks the final cumulative row of a group; _time
	// breaks ties in favour of the latest bucket.
	selectColumns = []string{"frontend_requests", "_time"}
)

// Each group is summed in ascending selectColumns order, the running totals
// are sorted descending and the first row kept, so a group reports its
// total as of the last bucket.
const fluxTemplate = `base = from(bucket: {{ quote .Bucket }})
    |> range(start: {{ .Start }}, stop: {{ .Stop }})
{{- if .KeyIDs }}
    |> filter(fn: (r) => contains(value: r["rpc_secret_key_id"], set: {{ fluxArray .KeyIDs }}))
{{- end }}
    |> filter(fn: (r) => r["_measurement"] == {{ quote .Measurement }})
{{- if .ChainID }}
    |> filter(fn: (r) => r["chain_id"] == {{ quote .ChainID }})
{{- end }}
{{- if .DropMethod }}
    |> drop(columns: ["method"])
{{- end }}

base
    |> aggregateWindow(every: {{ .WindowSeconds }}s, fn: sum, createEmpty: false)
    |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
    |> drop(columns: ["balance"])
    |> group(columns: {{ fluxArray .GroupColumns }})
    |> sort(columns: {{ fluxArray .SelectColumns }})
    |> map(fn: (r) => ({ r with "sum_credits_used": float(v: r["sum_credits_used"]) }))
    |> cumulativeSum(columns: {{ fluxArray .CumulativeColumns }})
    |> sort(columns: {{ fluxArray .SelectColumns }}, desc: true)
    |> limit(n: 1)
    |> group()
    |> sort(columns: {{ fluxArray .GroupColumns }}, desc: true)
`

var fluxQuery = template.Must(template.New("usage-stats").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{"fluxArray": fluxArray}).
	Parse(fluxTemplate))

// QueryParams is everything the Flux query depends on.
type QueryParams struct {
	Bucket      string
	Window      Window
	ChainID     uint64
	Granularity Granularity
	Caller      auth.Caller
	Scope       keys.Scope
}

type fluxQueryData struct {
	Bucket            string
	Start             int64
	Stop              int64
	KeyIDs            []string
	Measurement       string
	ChainID           uint64
	DropMethod        bool
	WindowSeconds     uint32
	GroupColumns      []string
	SelectColumns     []string
	CumulativeColumns []string
}

// Measurement is the measurement a caller's stats live in: anonymous
// callers see the collection-wide series, everybody else the opt-in one.
func Measurement(caller auth.Caller) string {
	if caller.IsAnonymous() {
		return MeasurementGlobal
	}
	return MeasurementOptIn
}

// BuildQuery renders the Flux query for a stats request.
func BuildQuery(p QueryParams) (string, error) {
	if p.Bucket == "" {
		return "", errors.New("no bucket configured")
	}
	if p.Window.Seconds == 0 {
		return "", errors.New("window must be at least one second")
	}

	ids := p.Scope.KeyIDs()
	keyIDs := make([]string, len(ids))
	for i, id := range ids {
		keyIDs[i] = strconv.FormatUint(id, 10)
	}

	data := fluxQueryData{
		Bucket:            p.Bucket,
		Start:             p.Window.Start.Unix(),
		Stop:              p.Window.Stop.Unix(),
		KeyIDs:            keyIDs,
		Measurement:       Measurement(p.Caller),
		ChainID:           p.ChainID,
		DropMethod:        p.Granularity == Aggregated,
		WindowSeconds:     p.Window.Seconds,
		GroupColumns:      groupColumns,
		SelectColumns:     selectColumns,
		CumulativeColumns: cumulativeColumns,
	}

	var buf bytes.Buffer
	if err := fluxQuery.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("error executing query template: %w", err)
	}
	return buf.String(), nil
}

// fluxArray renders a Flux array of string literals.
func fluxArray(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
