package binance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coachpo/orderdesk/internal/observability"
)

// timeSource abstracts the local wall clock for tests.
type timeSource func() time.Time

// Clock tracks the offset between the local clock and the exchange clock.
// Signed request timestamps are always taken from AdjustedNow so a skewed
// local clock does not trip the exchange recvWindow check.
type Clock struct {
	offsetMillis atomic.Int64
	now          timeSource
}

// NewClock returns a Clock with zero offset.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// serverTimer fetches the exchange server time in epoch milliseconds.
type serverTimer interface {
	ServerTime(ctx context.Context) (int64, error)
}

// Sync measures the offset against the exchange using the round-trip midpoint:
// the server time is assumed to correspond to the middle of the request.
func (c *Clock) Sync(ctx context.Context, src serverTimer) error {
	before := c.now().UnixMilli()
	serverMillis, err := src.ServerTime(ctx)
	if err != nil {
		return err
	}
	after := c.now().UnixMilli()

	midpoint := before + (after-before)/2
	offset := serverMillis - midpoint
	c.offsetMillis.Store(offset)
	observability.Log().Debug("clock synced",
		observability.F("offset_ms", offset),
		observability.F("rtt_ms", after-before))
	return nil
}

// AdjustedNow returns the current time in epoch milliseconds corrected by the
// last measured offset.
func (c *Clock) AdjustedNow() int64 {
	return c.now().UnixMilli() + c.offsetMillis.Load()
}

// Offset returns the last measured offset in milliseconds.
func (c *Clock) Offset() int64 {
	return c.offsetMillis.Load()
}
