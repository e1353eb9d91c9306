// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/config"
)

func TestNewProviderDisabledIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	require.NotNil(t, p)

	// Noop provider shuts down cleanly.
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ExporterType: "carrier-pigeon",
	}, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestNewProviderHTTPExporter(t *testing.T) {
	// The OTLP HTTP exporter connects lazily, so construction succeeds
	// without a collector listening.
	p, err := NewProvider(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ExporterType: "http",
		Endpoint:     "localhost:4318",
		SamplingRate: 0.5,
		Environment:  "test",
	}, "test")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	_, err := NewProvider(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)

	tr := Tracer("subwave/pipeline")
	require.NotNil(t, tr)

	_, span := tr.Start(context.Background(), "stage.extract")
	span.End()
}
