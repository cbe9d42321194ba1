package binance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderdesk/errs"
)

func newTestRetryer(delays *[]time.Duration) *Retryer {
	r := NewRetryer()
	r.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r
}

func TestRetryerBacksOffExponentially(t *testing.T) {
	var delays []time.Duration
	r := newTestRetryer(&delays)

	attempts := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return errs.New("binance", errs.CodeUnavailable)
	})
	require.Error(t, err)
	require.Equal(t, 5, attempts)
	require.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}, delays)
}

func TestRetryerStopsOnNonRetriable(t *testing.T) {
	var delays []time.Duration
	r := newTestRetryer(&delays)

	attempts := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return errs.New("binance", errs.CodeInvalid)
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Empty(t, delays)
}

func TestRetryerReturnsFirstSuccess(t *testing.T) {
	var delays []time.Duration
	r := newTestRetryer(&delays)

	attempts := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errs.New("binance", errs.CodeNetwork)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Len(t, delays, 2)
}

func TestRetryerHonorsContextCancellation(t *testing.T) {
	r := NewRetryer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, "op", func(context.Context) error {
		return errs.New("binance", errs.CodeNetwork)
	})
	require.ErrorIs(t, err, context.Canceled)
}
