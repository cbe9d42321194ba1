package binance

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/observability"
)

const defaultMaxAttempts = 5

// Retryer re-executes transient-failure operations with exponential backoff.
// Only errors classified retriable by errs.Retriable are retried; everything
// else surfaces immediately.
type Retryer struct {
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryer returns a Retryer with the default attempt budget.
func NewRetryer() *Retryer {
	return &Retryer{
		maxAttempts: defaultMaxAttempts,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 16 * time.Second
	return bo
}

// Do runs op until it succeeds, exhausts the attempt budget, or fails with a
// non-retriable error. The delay before attempt n+1 doubles from one second.
func (r *Retryer) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	bo := newBackOff()
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !errs.Retriable(err) || attempt == r.maxAttempts {
			return err
		}
		delay := bo.NextBackOff()
		observability.Log().Warn("retrying request",
			observability.F("op", name),
			observability.F("attempt", attempt),
			observability.F("delay", delay.String()),
			observability.F("error", err.Error()))
		observability.Telemetry().IncCounter(observability.MetricRequestRetries, 1, nil)
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}
