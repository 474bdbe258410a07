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

// Package usage tracks per-user consumption against subscription tiers.
// The tier resolver (modules/tier) provides the pure limit math; this
// package owns the record lifecycle and persistence.
package usage

import (
	"context"
	"errors"
	"time"

	"quotaguard/modules/tier"
)

// ErrNotFound is returned by Store.Get when no record exists for the user.
var ErrNotFound = errors.New("usage: record not found")

// Record is one user's consumption state. Count accrues within the current
// daily period, MonthlyCount within the current calendar month; the
// LastReset timestamps mark when each period last rolled over.
type Record struct {
	UserID           string    `json:"userId"`
	Tier             tier.Tier `json:"tier"`
	Count            int64     `json:"count"`
	MonthlyCount     int64     `json:"monthlyCount"`
	LastReset        time.Time `json:"lastReset"`
	LastMonthlyReset time.Time `json:"lastMonthlyReset"`
}

// Store persists usage records. The service layer owns all mutation
// decisions; the store only reads and writes.
type Store interface {
	// Get returns the record for userID, or ErrNotFound.
	Get(ctx context.Context, userID string) (Record, error)

	// Put upserts the record keyed by UserID.
	Put(ctx context.Context, rec Record) error

	// ResetStaleDaily zeroes daily counters whose LastReset is strictly
	// before cutoff, at most batch rows per call. Returns rows touched.
	ResetStaleDaily(ctx context.Context, cutoff, now time.Time, batch int) (int64, error)

	// ResetStaleMonthly zeroes monthly counters whose LastMonthlyReset
	// predates monthStart, at most batch rows per call.
	ResetStaleMonthly(ctx context.Context, monthStart, now time.Time, batch int) (int64, error)
}
