package quota

import (
	"context"
	"time"

	"quotaguard/modules/clock"
)

var _ Limiter = (*Unlimited)(nil)

// Unlimited is the "rate limiting absent" strategy used when no counter
// store is configured. It always allows with a full window remaining.
// Injecting it keeps the calling code free of configured/unconfigured
// branches and process-lifetime fallback state.
type Unlimited struct {
	clock  clock.Clock
	limit  int64
	window time.Duration
}

func NewUnlimited(c clock.Clock, limit int64, window time.Duration) *Unlimited {
	return &Unlimited{clock: c, limit: limit, window: window}
}

// UnlimitedFactory returns a LimiterFactory for the unconfigured mode.
func UnlimitedFactory(c clock.Clock) LimiterFactory {
	return func(limit int64, window time.Duration) Limiter {
		return NewUnlimited(c, limit, window)
	}
}

func (u *Unlimited) Check(ctx context.Context, key Key) (Result, error) {
	return u.result(), nil
}

func (u *Unlimited) Status(ctx context.Context, key Key) (Result, error) {
	return u.result(), nil
}

func (u *Unlimited) Reset(ctx context.Context, key Key) error {
	return nil
}

func (u *Unlimited) result() Result {
	return Result{
		Allowed:   true,
		Remaining: u.limit,
		Limit:     u.limit,
		Window:    u.window,
		ResetAt:   u.clock.Now().Add(u.window),
	}
}
