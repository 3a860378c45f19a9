package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := ResolveConfig("1.2.3")
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "geoflow", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate)
}

func TestResolveConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GEOFLOW_OTEL_ENABLED", "true")
	t.Setenv("GEOFLOW_OTEL_TRACES_ENABLED", "false")
	t.Setenv("GEOFLOW_OTEL_SERVICE_NAME", "geoflow-{{ env.GEOFLOW_REGION }}")
	t.Setenv("GEOFLOW_REGION", "west")
	t.Setenv("GEOFLOW_OTEL_ENDPOINT", "collector:4317")
	t.Setenv("GEOFLOW_OTEL_TRACE_SAMPLING_RATIO", "7")

	cfg, err := ResolveConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.TracesEnabled)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "geoflow-west", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate, "ratio is clamped")
}

func TestResolveConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing env placeholder", env: map[string]string{"GEOFLOW_OTEL_ENDPOINT": "{{ env.GEOFLOW_MISSING_COLLECTOR }}"}},
		{name: "http protocol", env: map[string]string{"GEOFLOW_OTEL_PROTOCOL": "HTTP"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := ResolveConfig("")
			assert.Error(t, err)
		})
	}
}

func TestRedactAttributeValue(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactAttributeValue("store.redis_url", "redis://:pw@host:6379/0"))
	assert.Equal(t, "[REDACTED]", RedactAttributeValue("store.postgres_url", "postgres://u:p@db/geo"))
	assert.Equal(t, "", RedactAttributeValue("store.postgres_url", ""))
	assert.Equal(t, "memory", RedactAttributeValue("store.backend", "memory"))
}
