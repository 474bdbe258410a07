package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotaguard/modules/clock"
	"quotaguard/modules/hmac"
	"quotaguard/modules/quota"
	"quotaguard/modules/tier"
	"quotaguard/modules/usage"
)

// memCounter is a minimal in-memory CounterStore for handler tests.
type memCounter struct {
	mu   sync.Mutex
	data map[string]int64
}

func (m *memCounter) Incr(ctx context.Context, key string, ttl time.Duration) (quota.IncrResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key]++
	return quota.IncrResult{Count: m.data[key], NewWindow: m.data[key] == 1}, nil
}

func (m *memCounter) Get(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memCounter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return -1, nil
}

func (m *memCounter) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// memUsageStore backs the usage service in handler tests.
type memUsageStore struct {
	mu   sync.Mutex
	data map[string]usage.Record
}

func (m *memUsageStore) Get(ctx context.Context, userID string) (usage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[userID]
	if !ok {
		return usage.Record{}, usage.ErrNotFound
	}
	return rec, nil
}

func (m *memUsageStore) Put(ctx context.Context, rec usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[rec.UserID] = rec
	return nil
}

func (m *memUsageStore) ResetStaleDaily(ctx context.Context, cutoff, now time.Time, batch int) (int64, error) {
	return 0, nil
}

func (m *memUsageStore) ResetStaleMonthly(ctx context.Context, monthStart, now time.Time, batch int) (int64, error) {
	return 0, nil
}

func newTestAPI(t *testing.T) (*QuotaAPI, *http.ServeMux, *hmac.HMACSigner) {
	t.Helper()
	vc := clock.NewVirtual(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	counter := &memCounter{data: map[string]int64{}}
	factory := quota.FixedWindowFactory(vc, counter, "test")

	store := &memUsageStore{data: map[string]usage.Record{}}
	svc := usage.NewService(store, vc)

	signer, err := hmac.NewHMACSigner([]byte("test-secret"))
	require.NoError(t, err)

	api := NewQuotaAPI(factory, svc, signer, 3, time.Minute)
	mux := http.NewServeMux()
	api.Register(mux)
	return api, mux, signer
}

func adminToken(t *testing.T, signer *hmac.HMACSigner) string {
	t.Helper()
	token, err := signer.Sign([]byte("admin"))
	require.NoError(t, err)
	return token
}

func TestQuotaCheckConsumesAndDenies(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	doCheck := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/quota/check",
			strings.NewReader(`{"identifier":"ip:203.0.113.5"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		rec := doCheck()
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doCheck()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestQuotaCheckVerdictBody(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/quota/check",
		strings.NewReader(`{"identifier":"u-1","limit":10,"windowMs":60000}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body verdictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Allowed)
	assert.Equal(t, int64(9), body.Remaining)
	assert.Equal(t, int64(10), body.Limit)
	// reset is one window from the virtual now
	assert.Equal(t, time.Date(2026, 6, 1, 0, 1, 0, 0, time.UTC).UnixMilli(), body.ResetTime)
}

func TestQuotaCheckValidation(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/quota/check", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/quota/check", strings.NewReader(`{"bogus":1}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuotaStatusDoesNotConsume(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/quota/status?identifier=u-1", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body verdictResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Allowed)
		assert.Equal(t, int64(3), body.Remaining)
	}
}

func TestQuotaResetRequiresAuth(t *testing.T) {
	_, mux, signer := newTestAPI(t)

	req := httptest.NewRequest(http.MethodDelete, "/v1/quota/u-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/v1/quota/u-1", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/v1/quota/u-1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, signer))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestQuotaResetRestoresAllowance(t *testing.T) {
	_, mux, signer := newTestAPI(t)

	check := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/quota/check",
			strings.NewReader(`{"identifier":"u-1"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, check())
	}
	require.Equal(t, http.StatusTooManyRequests, check())

	req := httptest.NewRequest(http.MethodDelete, "/v1/quota/u-1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, signer))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusOK, check())
}

func TestUsageConsumeAndStatus(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/usage/u-1/consume", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// free tier daily allowance exhausted
	req := httptest.NewRequest(http.MethodPost, "/v1/usage/u-1/consume", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "QUOTA_EXCEEDED")

	req = httptest.NewRequest(http.MethodGet, "/v1/usage/u-1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body usageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-1", body.UserID)
	assert.Equal(t, string(tier.Free), body.Tier)
	assert.False(t, body.Allowed)
	assert.Equal(t, int64(0), body.Remaining)
	assert.Equal(t, int64(10), body.DailyCount)
}

func TestUsageSetTier(t *testing.T) {
	_, mux, signer := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/usage/u-1/tier", strings.NewReader(`{"tier":"pro"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/v1/usage/u-1/tier", strings.NewReader(`{"tier":"pro"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, signer))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body usageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pro", body.Tier)

	req = httptest.NewRequest(http.MethodPut, "/v1/usage/u-1/tier", strings.NewReader(`{"tier":"gold"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, signer))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTiersETag(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tiers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)

	var body tiersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, tier.PolicyVersion, body.Version)
	assert.Len(t, body.Tiers, 5)

	req = httptest.NewRequest(http.MethodGet, "/v1/tiers", nil)
	req.Header.Set("If-None-Match", tag)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestHealthz(t *testing.T) {
	_, mux, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
