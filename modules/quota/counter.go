package quota

import (
	"context"
	"time"
)

// IncrResult is the outcome of one atomic counter increment.
//
// NewWindow is tagged by the store itself (the increment that created the
// key), so callers never infer window freshness from a magic count value.
type IncrResult struct {
	Count     int64
	NewWindow bool
}

// CounterStore is the storage abstraction the fixed-window limiter uses.
//
// Implementations must make Incr a true atomic increment-and-expire (a
// single INCR-style primitive, not read-modify-write from the caller) so
// concurrent requests for the same key cannot under-count.
type CounterStore interface {
	// Incr increments the counter at key and returns the new value.
	// When the increment creates the key, the window TTL is set in the
	// same atomic step and NewWindow is true.
	Incr(ctx context.Context, key string, ttl time.Duration) (IncrResult, error)

	// Get returns the current value of a counter, or 0 if missing.
	Get(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining lifetime of the counter at key.
	// A negative duration means the key is absent or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Del removes the counter at key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
}
