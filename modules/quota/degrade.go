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
	"log/slog"
	"strings"
	"time"

	"quotaguard/modules/clock"
)

// Mode selects the verdict produced when the counter store fails at
// runtime. It is resolved once at startup from the environment name, never
// per call site.
type Mode int

const (
	// ModeFailOpen treats the caller as unrestricted on store failure.
	// Local development must not be blocked by infrastructure outages.
	ModeFailOpen Mode = iota

	// ModeFailClosed denies on store failure. An attacker riding an
	// outage to bypass metering outweighs temporarily blocking
	// legitimate traffic.
	ModeFailClosed
)

func (m Mode) String() string {
	if m == ModeFailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// ModeForEnv maps a runtime environment name to a degradation mode.
// Production names fail closed; everything else fails open.
func ModeForEnv(env string) Mode {
	switch strings.ToLower(env) {
	case "prod", "production":
		return ModeFailClosed
	default:
		return ModeFailOpen
	}
}

// StoreErrorFunc observes counter-store failures swallowed by a Degrader,
// e.g. to feed a metric.
type StoreErrorFunc func(op string, err error)

var _ Limiter = (*Degrader)(nil)

// Degrader decorates a Limiter with the degradation policy: a store
// failure is translated into an allow/deny verdict per Mode and logged,
// never propagated to the caller as an error.
type Degrader struct {
	inner Limiter
	mode  Mode
	clock clock.Clock

	limit  int64
	window time.Duration

	onStoreError StoreErrorFunc
}

// NewDegrader wraps inner. limit and window are used to synthesize
// verdicts when inner cannot answer.
func NewDegrader(inner Limiter, mode Mode, c clock.Clock, limit int64, window time.Duration, onStoreError StoreErrorFunc) *Degrader {
	return &Degrader{
		inner:        inner,
		mode:         mode,
		clock:        c,
		limit:        limit,
		window:       window,
		onStoreError: onStoreError,
	}
}

// DegradingFactory composes FixedWindowFactory with a Degrader so every
// policy-built limiter carries the same degradation behavior.
func DegradingFactory(mode Mode, c clock.Clock, counter CounterStore, keyPrefix string, onStoreError StoreErrorFunc) LimiterFactory {
	base := FixedWindowFactory(c, counter, keyPrefix)
	return func(limit int64, window time.Duration) Limiter {
		return NewDegrader(base(limit, window), mode, c, limit, window, onStoreError)
	}
}

// Check implements Limiter.
func (d *Degrader) Check(ctx context.Context, key Key) (Result, error) {
	res, err := d.inner.Check(ctx, key)
	if err != nil {
		return d.degrade(key, "check", err), nil
	}
	return res, nil
}

// Status implements Limiter.
func (d *Degrader) Status(ctx context.Context, key Key) (Result, error) {
	res, err := d.inner.Status(ctx, key)
	if err != nil {
		return d.degrade(key, "status", err), nil
	}
	return res, nil
}

// Reset implements Limiter. Reset is an administrative operation, not a
// verdict, so store failures are surfaced to the caller.
func (d *Degrader) Reset(ctx context.Context, key Key) error {
	return d.inner.Reset(ctx, key)
}

func (d *Degrader) degrade(key Key, op string, err error) Result {
	if d.onStoreError != nil {
		d.onStoreError(op, err)
	}

	res := Result{
		Limit:   d.limit,
		Window:  d.window,
		ResetAt: d.clock.Now().Add(d.window),
	}

	if d.mode == ModeFailClosed {
		slog.Error("quota: counter store failed, denying",
			slog.String("op", op),
			slog.String("key", string(key)),
			slog.String("mode", d.mode.String()),
			slog.Any("error", err),
		)
		res.Allowed = false
		res.Remaining = 0
		return res
	}

	slog.Warn("quota: counter store failed, allowing",
		slog.String("op", op),
		slog.String("key", string(key)),
		slog.String("mode", d.mode.String()),
		slog.Any("error", err),
	)
	res.Allowed = true
	res.Remaining = d.limit
	return res
}
