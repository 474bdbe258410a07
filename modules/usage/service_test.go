package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotaguard/modules/clock"
	"quotaguard/modules/tier"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]Record

	failWith error
	putCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]Record{}}
}

func (f *fakeStore) Get(ctx context.Context, userID string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return Record{}, f.failWith
	}
	rec, ok := f.data[userID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) Put(ctx context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.putCalls++
	f.data[rec.UserID] = rec
	return nil
}

func (f *fakeStore) ResetStaleDaily(ctx context.Context, cutoff, now time.Time, batch int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, rec := range f.data {
		if n == int64(batch) {
			break
		}
		if rec.LastReset.Before(cutoff) {
			rec.Count = 0
			rec.LastReset = now
			f.data[id] = rec
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ResetStaleMonthly(ctx context.Context, monthStart, now time.Time, batch int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, rec := range f.data {
		if n == int64(batch) {
			break
		}
		if rec.LastMonthlyReset.Before(monthStart) {
			rec.MonthlyCount = 0
			rec.LastMonthlyReset = now
			f.data[id] = rec
			n++
		}
	}
	return n, nil
}

func TestConsumeCreatesFreeRecordOnFirstUse(t *testing.T) {
	vc := clock.NewVirtual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore()
	svc := NewService(store, vc)

	v, err := svc.Consume(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, tier.Free, v.Tier)
	assert.Equal(t, int64(9), v.Remaining)
	assert.Equal(t, int64(1), v.Record.Count)
}

func TestConsumeDeniesAtCeilingWithoutPersisting(t *testing.T) {
	vc := clock.NewVirtual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore()
	svc := NewService(store, vc)

	for i := 0; i < 10; i++ {
		v, err := svc.Consume(context.Background(), "u1", 1)
		require.NoError(t, err)
		require.True(t, v.Allowed)
	}
	putsBefore := store.putCalls

	v, err := svc.Consume(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, int64(0), v.Remaining)
	// a denied request must not mutate the stored record
	assert.Equal(t, putsBefore, store.putCalls)
	assert.Equal(t, int64(10), store.data["u1"].Count)
}

func TestConsumeAppliesLazyDailyReset(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	vc := clock.NewVirtual(start)
	store := newFakeStore()
	store.data["u1"] = Record{
		UserID:           "u1",
		Tier:             tier.Free,
		Count:            10,
		LastReset:        start.Add(-25 * time.Hour),
		LastMonthlyReset: start,
	}
	svc := NewService(store, vc)

	v, err := svc.Consume(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, int64(1), v.Record.Count)
	assert.Equal(t, start, v.Record.LastReset)
}

func TestConsumeSkipsResetWithin24Hours(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	vc := clock.NewVirtual(start)
	store := newFakeStore()
	store.data["u1"] = Record{
		UserID:           "u1",
		Tier:             tier.Free,
		Count:            10,
		LastReset:        start.Add(-23 * time.Hour),
		LastMonthlyReset: start,
	}
	svc := NewService(store, vc)

	v, err := svc.Consume(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
}

func TestConsumeAppliesLazyMonthlyReset(t *testing.T) {
	now := time.Date(2026, 2, 2, 1, 0, 0, 0, time.UTC)
	vc := clock.NewVirtual(now)
	store := newFakeStore()
	store.data["u1"] = Record{
		UserID:           "u1",
		Tier:             tier.Pro,
		MonthlyCount:     2000,
		LastReset:        now,
		LastMonthlyReset: time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC),
	}
	svc := NewService(store, vc)

	v, err := svc.Consume(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, int64(1), v.Record.MonthlyCount)
}

func TestStatusReflectsResetsWithoutPersisting(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	vc := clock.NewVirtual(start)
	store := newFakeStore()
	store.data["u1"] = Record{
		UserID:           "u1",
		Tier:             tier.Free,
		Count:            10,
		LastReset:        start.Add(-25 * time.Hour),
		LastMonthlyReset: start,
	}
	svc := NewService(store, vc)

	v, err := svc.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, int64(10), v.Remaining)

	// the stored row is untouched; Consume is the write path
	assert.Equal(t, int64(10), store.data["u1"].Count)
	assert.Equal(t, 0, store.putCalls)
}

func TestStatusUnknownUserIsFreshFreeTier(t *testing.T) {
	vc := clock.NewVirtual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(newFakeStore(), vc)

	v, err := svc.Status(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, tier.Free, v.Tier)
	assert.Equal(t, int64(10), v.Remaining)
}

func TestConsumeUnlimitedTier(t *testing.T) {
	vc := clock.NewVirtual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore()
	store.data["u1"] = Record{
		UserID:           "u1",
		Tier:             tier.Unlimited,
		Count:            1 << 30,
		MonthlyCount:     1 << 30,
		LastReset:        vc.Now(),
		LastMonthlyReset: vc.Now(),
	}
	svc := NewService(store, vc)

	v, err := svc.Consume(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.True(t, v.Unlimited)
}

func TestSetTier(t *testing.T) {
	vc := clock.NewVirtual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore()
	svc := NewService(store, vc)

	rec, err := svc.SetTier(context.Background(), "u1", tier.Pro)
	require.NoError(t, err)
	assert.Equal(t, tier.Pro, rec.Tier)
	assert.Equal(t, tier.Pro, store.data["u1"].Tier)

	_, err = svc.SetTier(context.Background(), "u1", tier.Tier("gold"))
	assert.Error(t, err)
}

func TestConsumeSurfacesStoreErrors(t *testing.T) {
	vc := clock.NewVirtual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeStore()
	store.failWith = errors.New("pg down")
	svc := NewService(store, vc)

	_, err := svc.Consume(context.Background(), "u1", 1)
	assert.Error(t, err)
}
