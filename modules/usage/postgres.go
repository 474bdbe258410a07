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
	_ "embed"
	"errors"
	"fmt"
	"time"

	"quotaguard/modules/db/postgres"
	"quotaguard/modules/tier"

	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schemaSQL string

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists usage records in a single usage_records table.
type PostgresStore struct {
	pool *postgres.Pool
}

func NewPostgresStore(pool *postgres.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the usage_records table and its indexes if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("usage: ensure schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Record, error) {
	const q = `
		SELECT user_id, tier, count, monthly_count, last_reset, last_monthly_reset
		FROM usage_records
		WHERE user_id = $1`

	var rec Record
	var t string
	err := s.pool.QueryRow(ctx, q, userID).Scan(
		&rec.UserID, &t, &rec.Count, &rec.MonthlyCount,
		&rec.LastReset, &rec.LastMonthlyReset,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("usage: get %q: %w", userID, err)
	}
	rec.Tier = tier.Tier(t)
	return rec, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO usage_records (user_id, tier, count, monthly_count, last_reset, last_monthly_reset)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			tier               = EXCLUDED.tier,
			count              = EXCLUDED.count,
			monthly_count      = EXCLUDED.monthly_count,
			last_reset         = EXCLUDED.last_reset,
			last_monthly_reset = EXCLUDED.last_monthly_reset`

	_, err := s.pool.Exec(ctx, q,
		rec.UserID, string(rec.Tier), rec.Count, rec.MonthlyCount,
		rec.LastReset, rec.LastMonthlyReset,
	)
	if err != nil {
		return fmt.Errorf("usage: put %q: %w", rec.UserID, err)
	}
	return nil
}

// ResetStaleDaily implements Store.
func (s *PostgresStore) ResetStaleDaily(ctx context.Context, cutoff, now time.Time, batch int) (int64, error) {
	const q = `
		UPDATE usage_records
		SET count = 0, last_reset = $2
		WHERE user_id IN (
			SELECT user_id FROM usage_records
			WHERE last_reset < $1
			LIMIT $3
		)`

	tag, err := s.pool.Exec(ctx, q, cutoff, now, batch)
	if err != nil {
		return 0, fmt.Errorf("usage: reset stale daily: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetStaleMonthly implements Store.
func (s *PostgresStore) ResetStaleMonthly(ctx context.Context, monthStart, now time.Time, batch int) (int64, error) {
	const q = `
		UPDATE usage_records
		SET monthly_count = 0, last_monthly_reset = $2
		WHERE user_id IN (
			SELECT user_id FROM usage_records
			WHERE last_monthly_reset < $1
			LIMIT $3
		)`

	tag, err := s.pool.Exec(ctx, q, monthStart, now, batch)
	if err != nil {
		return 0, fmt.Errorf("usage: reset stale monthly: %w", err)
	}
	return tag.RowsAffected(), nil
}
