package quota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rl "quotaguard/modules/quota"
)

// stubLimiter returns a canned verdict for every call.
type stubLimiter struct {
	result rl.Result
	calls  int
	keys   []rl.Key
}

func (s *stubLimiter) Check(ctx context.Context, key rl.Key) (rl.Result, error) {
	s.calls++
	s.keys = append(s.keys, key)
	return s.result, nil
}

func (s *stubLimiter) Status(ctx context.Context, key rl.Key) (rl.Result, error) {
	return s.result, nil
}

func (s *stubLimiter) Reset(ctx context.Context, key rl.Key) error { return nil }

func allowResult() rl.Result {
	return rl.Result{
		Allowed:   true,
		Remaining: 4,
		Limit:     5,
		Window:    time.Minute,
		ResetAt:   time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
	}
}

func denyResult() rl.Result {
	r := allowResult()
	r.Allowed = false
	r.Remaining = 0
	return r
}

func pathRouteInfo(r *http.Request) RouteInfo {
	return RouteInfo{ID: Pattern(r.URL.Path), Method: r.Method, Path: r.URL.Path}
}

func newRuntimePolicy(t *testing.T, lim rl.Limiter, cfg *Config) *RuntimePolicy {
	t.Helper()
	rtp, err := ParsePolicy(
		func(limit int64, window time.Duration) rl.Limiter { return lim },
		cfg,
		pathRouteInfo,
		map[KeyStrategyId]KeyFunc{
			ClientIPKeyStrategy: ClientIPKeyFunc,
			UserKeyStrategy:     UserKeyFunc,
		},
	)
	require.NoError(t, err)
	return rtp
}

func routeConfig(pattern string) *Config {
	return &Config{
		Routes: []Route{{
			Pattern: pattern,
			EndpointRules: []EndpointRule{{
				Method:      http.MethodGet,
				Limit:       5,
				Window:      time.Minute,
				KeyStrategy: ClientIPKeyStrategy,
			}},
		}},
		AllowIfNoMatch: true,
	}
}

func TestMiddlewareAllowsAndSetsHeaders(t *testing.T) {
	lim := &stubLimiter{result: allowResult()}
	rtp := newRuntimePolicy(t, lim, routeConfig("/v1/thing"))

	handler := NewMiddleware(rtp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, lim.calls)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1767225660000", rec.Header().Get("X-RateLimit-Reset"))
}

func TestMiddlewareDenies429ProblemJSON(t *testing.T) {
	lim := &stubLimiter{result: denyResult()}
	rtp := newRuntimePolicy(t, lim, routeConfig("/v1/thing"))

	handler := NewMiddleware(rtp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on a denied request")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddlewareUnmatchedRoutePassesThrough(t *testing.T) {
	lim := &stubLimiter{result: denyResult()}
	rtp := newRuntimePolicy(t, lim, routeConfig("/v1/thing"))

	handler := NewMiddleware(rtp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/other", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, lim.calls)
}

func TestMiddlewareUnmatchedRouteDeniedWhenStrict(t *testing.T) {
	lim := &stubLimiter{result: allowResult()}
	cfg := routeConfig("/v1/thing")
	cfg.AllowIfNoMatch = false
	rtp := newRuntimePolicy(t, lim, cfg)

	handler := NewMiddleware(rtp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/other", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddlewareDefaultPolicyFallback(t *testing.T) {
	lim := &stubLimiter{result: allowResult()}
	cfg := &Config{
		DefaultPolicy: EndpointRule{
			Limit:       5,
			Window:      time.Minute,
			KeyStrategy: ClientIPKeyStrategy,
		},
		AllowIfNoMatch: true,
	}
	rtp := newRuntimePolicy(t, lim, cfg)

	handler := NewMiddleware(rtp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, lim.calls)
}

func TestMiddlewareOnDecisionHook(t *testing.T) {
	lim := &stubLimiter{result: denyResult()}
	rtp := newRuntimePolicy(t, lim, routeConfig("/v1/thing"))

	var observed []bool
	rtp.OnDecision = func(ctx context.Context, allowed bool) {
		observed = append(observed, allowed)
	}

	handler := NewMiddleware(rtp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/v1/thing", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []bool{false}, observed)
}

func TestClientIPKeyFuncPrecedence(t *testing.T) {
	newReq := func(hs map[string]string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range hs {
			r.Header.Set(k, v)
		}
		return r
	}

	// first X-Forwarded-For entry wins over everything else
	key := ClientIPKeyFunc(newReq(map[string]string{
		"X-Forwarded-For":  "203.0.113.5, 10.0.0.1",
		"X-Real-Ip":        "198.51.100.7",
		"Cf-Connecting-Ip": "192.0.2.9",
	}))
	assert.Equal(t, rl.Key("ip:203.0.113.5"), key)

	key = ClientIPKeyFunc(newReq(map[string]string{
		"X-Real-Ip":        "198.51.100.7",
		"Cf-Connecting-Ip": "192.0.2.9",
	}))
	assert.Equal(t, rl.Key("ip:198.51.100.7"), key)

	key = ClientIPKeyFunc(newReq(map[string]string{
		"Cf-Connecting-Ip": "192.0.2.9",
	}))
	assert.Equal(t, rl.Key("ip:192.0.2.9"), key)

	// no attribution headers: shared bucket, never an empty key
	key = ClientIPKeyFunc(newReq(nil))
	assert.Equal(t, rl.Key("ip:unknown"), key)
}

func TestUserKeyFunc(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, rl.Key(""), UserKeyFunc(r))

	r.Header.Set("X-User-Id", "42")
	assert.Equal(t, rl.Key("user:42"), UserKeyFunc(r))
}
