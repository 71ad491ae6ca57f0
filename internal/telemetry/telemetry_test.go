package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestNewResource(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

	tests := []struct {
		name    string
		cfg     Config
		wantEnv string
	}{
		{name: "with environment", cfg: Config{ServiceName: "clientportal-server", Version: "1.2.3", Environment: "staging"}, wantEnv: "staging"},
		{name: "without environment", cfg: Config{ServiceName: "clientportal-server", Version: "dev"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newResource(context.Background(), tt.cfg)
			require.NoError(t, err)

			set := res.Set()

			name, ok := set.Value(semconv.ServiceNameKey)
			require.True(t, ok)
			require.Equal(t, tt.cfg.ServiceName, name.AsString())

			ns, ok := set.Value(semconv.ServiceNamespaceKey)
			require.True(t, ok)
			require.Equal(t, "clientportal", ns.AsString())

			env, ok := set.Value(semconv.DeploymentEnvironmentKey)
			require.Equal(t, tt.wantEnv != "", ok)
			require.Equal(t, tt.wantEnv, env.AsString())
		})
	}
}

func TestResourceEnvOverride(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=prod-kr")

	res, err := newResource(context.Background(), Config{ServiceName: "clientportal-server", Environment: "staging"})
	require.NoError(t, err)

	env, ok := res.Set().Value(attribute.Key("deployment.environment"))
	require.True(t, ok)
	require.Equal(t, "prod-kr", env.AsString())
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 1, want: "ParentBased{root:AlwaysOnSampler"},
		{ratio: 2, want: "ParentBased{root:AlwaysOnSampler"},
		{ratio: 0, want: "ParentBased{root:AlwaysOffSampler"},
		{ratio: 0.25, want: "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		require.Contains(t, samplerFor(tt.ratio).Description(), tt.want)
	}
}
