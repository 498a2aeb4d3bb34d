package changefeed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backoff is the wait between attempts at handling one event. It doubles from
// Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used by transports that retry in place
var DefaultBackoff = Backoff{Initial: 100 * time.Millisecond, Max: 10 * time.Second}

func (b Backoff) next(d time.Duration) time.Duration {
	if d <= 0 {
		if b.Initial <= 0 {
			return DefaultBackoff.Initial
		}
		return b.Initial
	}
	d *= 2
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// deliver runs handler until it accepts the event or ctx is done. Later events of the
// subscription wait, which keeps the per-order write order intact.
func deliver(ctx context.Context, handler Handler, event ChangeEvent, backoff Backoff, logger *zap.Logger) error {
	var wait time.Duration
	for attempt := 1; ; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return nil
		}
		wait = backoff.next(wait)
		logger.Error("change event handler failed, retrying",
			zap.String("order_id", event.OrderID),
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
