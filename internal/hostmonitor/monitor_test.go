package hostmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeGauges struct {
	goroutines, fds, heap float64
}

func (f *fakeGauges) SetHostGoroutines(v float64) { f.goroutines = v }
func (f *fakeGauges) SetHostOpenFDs(v float64)    { f.fds = v }
func (f *fakeGauges) SetHostHeapBytes(v float64)  { f.heap = v }

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMonitorSamplesOnStartAndStop(t *testing.T) {
	gauges := &fakeGauges{}
	mon, err := New(10*time.Millisecond, gauges, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mon.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	mon.Stop()

	assert.Greater(t, gauges.goroutines, 0.0)
	last := mon.Last()
	assert.False(t, last.CapturedAt.IsZero())
}
