package binance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedServerTime struct {
	millis int64
	err    error
}

func (f fixedServerTime) ServerTime(context.Context) (int64, error) {
	return f.millis, f.err
}

func TestClockSyncUsesRoundTripMidpoint(t *testing.T) {
	clock := NewClock()
	// Local clock ticks 100ms per call: before=1000ms, after=1100ms,
	// midpoint=1050ms. Server reports 2050ms, so offset is +1000ms.
	calls := 0
	clock.now = func() time.Time {
		calls++
		return time.UnixMilli(int64(1000 + (calls-1)*100))
	}

	err := clock.Sync(context.Background(), fixedServerTime{millis: 2050})
	require.NoError(t, err)
	require.Equal(t, int64(1000), clock.Offset())
}

func TestClockAdjustedNowAppliesOffset(t *testing.T) {
	clock := NewClock()
	clock.now = func() time.Time { return time.UnixMilli(5000) }
	clock.offsetMillis.Store(-250)

	require.Equal(t, int64(4750), clock.AdjustedNow())
}

func TestClockSyncPropagatesError(t *testing.T) {
	clock := NewClock()
	err := clock.Sync(context.Background(), fixedServerTime{err: context.DeadlineExceeded})
	require.Error(t, err)
	require.Zero(t, clock.Offset())
}
