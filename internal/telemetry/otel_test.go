package telemetry

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/julioAk47/web3-proxy/config"
)

func TestInitTracer_None(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := InitTracer(ServiceName, &config.Config{OTELExporterType: "none"}, zerolog.New(io.Discard))
	require.NoError(t, err)
	shutdown()
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracer_Stdout(t *testing.T) {
	shutdown, err := InitTracer(ServiceName, &config.Config{OTELExporterType: "stdout"}, zerolog.New(io.Discard))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}
