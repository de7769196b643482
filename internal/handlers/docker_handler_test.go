package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowtraced/pkg/flowtypes"
)

func TestDockerCorrelationHandlerIsNoOpWithoutReachableDaemon(t *testing.T) {
	h := &DockerCorrelationHandler{threshold: 1}
	snap := flowtypes.MetricSnapshot{
		Metrics: map[flowtypes.MetricType]flowtypes.MetricPayload{
			flowtypes.DirectLeaks: {Total: 5},
		},
	}
	require.NoError(t, h.OnMetrics(snap))
	assert.Equal(t, "docker-correlation", h.Name())
}

func TestDockerCorrelationHandlerRequiredMetricsIsBothFamilies(t *testing.T) {
	h := &DockerCorrelationHandler{}
	want := h.RequiredMetrics()
	assert.Len(t, want, 2)
}
