package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestAppStartStopWithNoHandlersConfigured exercises the lifecycle with
// every optional component disabled (no config file given, so every
// handler/server/host-monitor block defaults to off), matching the
// teacher's app_test.go pattern of a "nothing wired" smoke test before
// testing any individual component's wiring.
func TestAppStartStopWithNoHandlersConfigured(t *testing.T) {
	a, err := New("")
	require.NoError(t, err)

	require.NoError(t, a.Start())
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Stop())

	stats := a.Engine().Stats()
	assert.Equal(t, uint64(0), stats.DroppedEvents)
}

func TestAppExposesEngineForInstrumentationWiring(t *testing.T) {
	a, err := New("")
	require.NoError(t, err)
	require.NotNil(t, a.Engine())
	require.NoError(t, a.Start())
	require.NoError(t, a.Stop())
}
