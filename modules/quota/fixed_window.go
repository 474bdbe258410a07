// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quotaguard/modules/clock"
)

var _ Limiter = (*FixedWindow)(nil)

// FixedWindow is a fixed-window counter limiter backed by an external
// atomic CounterStore.
//
// The window starts at the first increment of a fresh key and lives for
// exactly the configured duration; the store's own expiry destroys the
// record. ResetAt is derived from the store's remaining TTL rather than
// recomputed locally, so concurrent callers observe a consistent countdown
// and the verdict stays aligned with the store's clock.
type FixedWindow struct {
	clock     clock.Clock
	counter   CounterStore
	keyPrefix string

	limit  int64
	window time.Duration
}

// NewFixedWindow builds a fixed-window limiter. limit and window must be
// positive; violations are rejected here rather than clamped.
func NewFixedWindow(c clock.Clock, counter CounterStore, keyPrefix string, limit int64, window time.Duration) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadLimit, limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrBadWindow, window)
	}
	return &FixedWindow{
		clock:     c,
		counter:   counter,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}, nil
}

// FixedWindowFactory returns a LimiterFactory producing FixedWindow
// limiters over the given store. Limits are validated when the policy
// layer invokes the factory; an invalid policy panics at startup instead
// of silently misbehaving per request.
func FixedWindowFactory(c clock.Clock, counter CounterStore, keyPrefix string) LimiterFactory {
	return func(limit int64, window time.Duration) Limiter {
		fw, err := NewFixedWindow(c, counter, keyPrefix, limit, window)
		if err != nil {
			panic(err)
		}
		return fw
	}
}

// Check implements Limiter.
func (f *FixedWindow) Check(ctx context.Context, key Key) (Result, error) {
	k := f.buildKey(key)

	ir, err := f.counter.Incr(ctx, k, f.window)
	if err != nil {
		return Result{}, fmt.Errorf("quota: incr %q: %w", k, err)
	}

	remaining := f.limit - ir.Count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   ir.Count <= f.limit,
		Remaining: remaining,
		Limit:     f.limit,
		Window:    f.window,
		ResetAt:   f.resolveReset(ctx, k),
	}, nil
}

// Status implements Limiter. It never increments; a missing key reports a
// full window.
func (f *FixedWindow) Status(ctx context.Context, key Key) (Result, error) {
	k := f.buildKey(key)

	count, err := f.counter.Get(ctx, k)
	if err != nil {
		return Result{}, fmt.Errorf("quota: get %q: %w", k, err)
	}

	remaining := f.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		// Allowed answers "would a request right now pass": the next
		// increment yields count+1, which must stay within the limit.
		Allowed:   count < f.limit,
		Remaining: remaining,
		Limit:     f.limit,
		Window:    f.window,
		ResetAt:   f.resolveReset(ctx, k),
	}, nil
}

// Reset implements Limiter.
func (f *FixedWindow) Reset(ctx context.Context, key Key) error {
	k := f.buildKey(key)
	if err := f.counter.Del(ctx, k); err != nil {
		return fmt.Errorf("quota: reset %q: %w", k, err)
	}
	return nil
}

// resolveReset prefers the store's remaining TTL over a locally recomputed
// expiry. A non-positive or unavailable TTL (fresh key racing its expiry
// set, or a failed TTL read) falls back to now+window; the fallback is not
// a degradation event.
func (f *FixedWindow) resolveReset(ctx context.Context, k string) time.Time {
	now := f.clock.Now()

	ttl, err := f.counter.TTL(ctx, k)
	if err != nil {
		slog.Debug("quota: ttl lookup failed, using local window",
			slog.String("key", k),
			slog.Any("error", err),
		)
		return now.Add(f.window)
	}
	if ttl <= 0 {
		return now.Add(f.window)
	}
	return now.Add(ttl)
}

func (f *FixedWindow) buildKey(key Key) string {
	if f.keyPrefix == "" {
		return string(key)
	}
	return f.keyPrefix + ":" + string(key)
}
