package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsStableLoggerPerCategory(t *testing.T) {
	a := Get(CategoryStore)
	b := Get(CategoryStore)
	require.Same(t, a, b)

	c := Get(CategoryVault)
	require.NotSame(t, a, c)
}

func TestTimerStopReturnsNonNegativeDuration(t *testing.T) {
	timer := StartTimer(CategoryPerformance, "test-op")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()
	require.GreaterOrEqual(t, elapsed, time.Millisecond)
}

func TestStopWithThresholdDoesNotPanicWithoutInit(t *testing.T) {
	timer := StartTimer(CategoryPerformance, "threshold-op")
	require.NotPanics(t, func() {
		timer.StopWithThreshold(time.Nanosecond)
	})
}
