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

package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quotaguard/modules/clock"
	"quotaguard/modules/tier"
)

// Verdict is the outcome of a tier-aware quota decision. Exhaustion is a
// normal return value, not an error.
type Verdict struct {
	Allowed   bool
	Remaining int64
	Unlimited bool
	Tier      tier.Tier
	Record    Record
}

// Service applies tier policy to usage records: lazy period resets,
// ceiling checks, and consumption accounting.
type Service struct {
	store Store
	clock clock.Clock
}

func NewService(store Store, c clock.Clock) *Service {
	return &Service{store: store, clock: c}
}

// Consume spends units of quota for userID. Period resets are applied
// lazily before the ceiling check, so dormant users are never penalized
// for counters left over from a previous period. The mutated record is
// persisted only when the request is allowed.
func (s *Service) Consume(ctx context.Context, userID string, units int64) (Verdict, error) {
	if units <= 0 {
		units = 1
	}

	rec, err := s.load(ctx, userID)
	if err != nil {
		return Verdict{}, err
	}

	now := s.clock.Now()
	s.applyResets(&rec, now)

	if tier.HasReachedLimit(rec.Tier, rec.Count, rec.MonthlyCount) {
		remaining, unlimited := tier.RemainingUnits(rec.Tier, rec.Count, rec.MonthlyCount)
		slog.Debug("usage: limit reached",
			slog.String("user_id", userID),
			slog.String("tier", string(rec.Tier)),
		)
		return Verdict{
			Allowed:   false,
			Remaining: remaining,
			Unlimited: unlimited,
			Tier:      rec.Tier,
			Record:    rec,
		}, nil
	}

	rec.Count += units
	rec.MonthlyCount += units

	if err := s.store.Put(ctx, rec); err != nil {
		return Verdict{}, fmt.Errorf("usage: persist %q: %w", userID, err)
	}

	remaining, unlimited := tier.RemainingUnits(rec.Tier, rec.Count, rec.MonthlyCount)
	return Verdict{
		Allowed:   true,
		Remaining: remaining,
		Unlimited: unlimited,
		Tier:      rec.Tier,
		Record:    rec,
	}, nil
}

// Status answers "how many units remain" without consuming. Pending period
// resets are reflected in the answer but not persisted; Consume is the
// write path.
func (s *Service) Status(ctx context.Context, userID string) (Verdict, error) {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return Verdict{}, err
	}

	s.applyResets(&rec, s.clock.Now())

	remaining, unlimited := tier.RemainingUnits(rec.Tier, rec.Count, rec.MonthlyCount)
	return Verdict{
		Allowed:   !tier.HasReachedLimit(rec.Tier, rec.Count, rec.MonthlyCount),
		Remaining: remaining,
		Unlimited: unlimited,
		Tier:      rec.Tier,
		Record:    rec,
	}, nil
}

// SetTier moves a user onto a new tier, creating the record if absent.
// Counters carry over; the next period reset clears them on schedule.
func (s *Service) SetTier(ctx context.Context, userID string, t tier.Tier) (Record, error) {
	if !t.Valid() {
		return Record{}, fmt.Errorf("usage: unknown tier %q", t)
	}

	rec, err := s.load(ctx, userID)
	if err != nil {
		return Record{}, err
	}
	rec.Tier = t
	if err := s.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("usage: persist %q: %w", userID, err)
	}
	return rec, nil
}

func (s *Service) load(ctx context.Context, userID string) (Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		now := s.clock.Now()
		return Record{
			UserID:           userID,
			Tier:             tier.Free,
			LastReset:        now,
			LastMonthlyReset: now,
		}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("usage: load %q: %w", userID, err)
	}
	return rec, nil
}

func (s *Service) applyResets(rec *Record, now time.Time) {
	if tier.NeedsDailyReset(rec.LastReset, now) {
		rec.Count = 0
		rec.LastReset = now
	}
	if tier.NeedsMonthlyReset(rec.LastMonthlyReset, now) {
		rec.MonthlyCount = 0
		rec.LastMonthlyReset = now
	}
}
