package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInit_EmptyEndpointInstallsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "tracectl-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracer_StartsSpans(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "tracectl-test", SampleRatio: 0.5})
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, span := Tracer("tracectl/test").Start(context.Background(), "op")
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, samplerFor(tt.ratio).Description(), tt.want, "ratio %v", tt.ratio)
	}
}
