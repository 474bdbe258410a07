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
	"errors"
	"time"
)

var (
	// ErrBadLimit is returned by constructors when the request ceiling is not positive.
	// A bad limit is a programming error in the calling code, not a runtime condition.
	ErrBadLimit = errors.New("quota: limit must be positive")

	// ErrBadWindow is returned by constructors when the window duration is not positive.
	ErrBadWindow = errors.New("quota: window must be positive")
)

type (
	// LimiterFactory builds a Limiter for a given ceiling and window.
	// Limiters are stateless over a shared CounterStore, so building one
	// per policy (or even per call) is cheap.
	LimiterFactory func(limit int64, window time.Duration) Limiter

	// Key identifies the caller whose consumption is being tracked,
	// e.g. "ip:203.0.113.5" or "user:42". Distinct keys never share state.
	Key string

	// Result is the verdict of one quota evaluation. Quota exhaustion is a
	// normal return value (Allowed=false), never an error.
	Result struct {
		Allowed   bool
		Remaining int64         // requests left in the current window, floored at 0
		Limit     int64         // max allowed in the window
		Window    time.Duration // configured window size
		ResetAt   time.Time     // absolute time the current window expires
	}

	// Limiter enforces time-based request quotas.
	Limiter interface {
		// Check consumes one unit for key and reports whether the request
		// may proceed.
		Check(ctx context.Context, key Key) (Result, error)

		// Status reports the verdict a Check would produce without
		// consuming a unit.
		Status(ctx context.Context, key Key) (Result, error)

		// Reset discards key's current window. Resetting a key with no
		// active window is a no-op.
		Reset(ctx context.Context, key Key) error
	}
)
