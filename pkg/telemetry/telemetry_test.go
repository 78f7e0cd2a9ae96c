package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/agora-forum/agora/pkg/config"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(&config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()

	_, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), &config.TelemetryConfig{
		ServiceName:    "agora-worker",
		ServiceVersion: "1.2.0",
		Environment:    "staging",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"service name", string(semconv.ServiceNameKey), "agora-worker"},
		{"service version", string(semconv.ServiceVersionKey), "1.2.0"},
		{"environment", string(semconv.DeploymentEnvironmentKey), "staging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := false
			for _, kv := range res.Attributes() {
				if string(kv.Key) == tt.key {
					found = true
					assert.Equal(t, tt.want, kv.Value.AsString())
				}
			}
			assert.True(t, found, "missing %s", tt.key)
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		desc := sampler(tt.ratio).Description()
		assert.Contains(t, desc, "ParentBased")
		assert.Contains(t, desc, tt.want, "ratio %v", tt.ratio)
	}
}
