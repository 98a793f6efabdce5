package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewDisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false}, "test")
	require.NoError(t, err)
	require.NotNil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewEnabledRequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true}, "test")
	assert.Error(t, err)
}

func TestSamplerSelection(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample(), sampler(1.0))
	assert.Equal(t, sdktrace.AlwaysSample(), sampler(2.0))
	assert.Equal(t, sdktrace.NeverSample(), sampler(0))
	assert.Equal(t, sdktrace.NeverSample(), sampler(-0.5))

	ratio := sampler(0.25)
	assert.NotEqual(t, sdktrace.AlwaysSample(), ratio)
	assert.NotEqual(t, sdktrace.NeverSample(), ratio)
}

func TestShutdownNilReceiver(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
