package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotaguard/modules/clock"
	"quotaguard/modules/tier"
)

func TestSweeperResetsStaleRows(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	vc := clock.NewVirtual(now)
	store := newFakeStore()

	store.data["stale-daily"] = Record{
		UserID:           "stale-daily",
		Tier:             tier.Free,
		Count:            10,
		LastReset:        now.Add(-30 * time.Hour),
		LastMonthlyReset: now,
	}
	store.data["fresh"] = Record{
		UserID:           "fresh",
		Tier:             tier.Free,
		Count:            4,
		LastReset:        now.Add(-2 * time.Hour),
		LastMonthlyReset: now,
	}
	store.data["stale-monthly"] = Record{
		UserID:           "stale-monthly",
		Tier:             tier.Pro,
		MonthlyCount:     1500,
		LastReset:        now,
		LastMonthlyReset: time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
	}

	s := NewSweeper(store, nil, vc, SweeperConfig{
		Interval:         time.Hour,
		BatchSize:        100,
		BatchesPerSecond: 1000,
		Workers:          2,
	})

	require.NoError(t, s.runBatches(context.Background()))

	assert.Equal(t, int64(0), store.data["stale-daily"].Count)
	assert.Equal(t, int64(4), store.data["fresh"].Count)
	assert.Equal(t, int64(0), store.data["stale-monthly"].MonthlyCount)
}

func TestNewSweeperAppliesDefaults(t *testing.T) {
	s := NewSweeper(newFakeStore(), nil, clock.NewVirtual(time.Now()), SweeperConfig{})
	assert.Equal(t, time.Hour, s.cfg.Interval)
	assert.Equal(t, 500, s.cfg.BatchSize)
	assert.Equal(t, float64(4), s.cfg.BatchesPerSecond)
}
