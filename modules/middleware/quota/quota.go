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
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"quotaguard/modules/middleware/problem"
	rl "quotaguard/modules/quota"
)

type (
	Pattern string
	method  string

	// RouteInfoFunc extracts from a HTTP request the route information
	// needed for pattern matching.
	RouteInfoFunc func(*http.Request) RouteInfo

	// RouteInfo is the framework-agnostic route identity used by this
	// middleware.
	RouteInfo struct {
		ID     Pattern
		Method string
		Path   string
	}

	Policy struct {
		Limiter rl.Limiter
		KeyFn   KeyFunc
	}

	// RuntimePolicy is the compiled per-route policy set injected at
	// startup and consulted on every request.
	RuntimePolicy struct {
		policyMap map[Pattern]map[method]Policy

		// Defaults applied when no route/method-specific policy exists.
		// A method-specific default takes precedence over the catch-all.
		defaultPolicyByMethod map[method]Policy
		defaultPolicy         *Policy

		// Allow to next middleware if no quota policy matches this route.
		AllowIfNoMatch bool
		// Allow to next middleware if KeyFn extracts no identifier.
		AllowIfNoIdentifier bool

		RouteInfoFn RouteInfoFunc

		// OnDecision, if set, observes every verdict (metrics).
		OnDecision func(ctx context.Context, allowed bool)
	}
)

type policySource string

const (
	policySourceExplicit      policySource = "explicit"
	policySourceDefaultMethod policySource = "default_method"
	policySourceDefaultAll    policySource = "default"
)

func normalizeMethod(m string) method {
	return method(strings.ToUpper(m))
}

func (p *RuntimePolicy) findPolicy(routeInfo RouteInfo) (Policy, bool, policySource) {
	if pm, ok := p.policyMap[routeInfo.ID]; ok {
		if px, ok := pm[normalizeMethod(routeInfo.Method)]; ok {
			return px, true, policySourceExplicit
		}
	}

	if routeInfo.Method != "" && p.defaultPolicyByMethod != nil {
		if px, ok := p.defaultPolicyByMethod[normalizeMethod(routeInfo.Method)]; ok {
			return px, true, policySourceDefaultMethod
		}
	}

	if p.defaultPolicy != nil {
		return *p.defaultPolicy, true, policySourceDefaultAll
	}

	return Policy{}, false, ""
}

// ParsePolicy compiles the env config into a RuntimePolicy, building one
// limiter per route-method rule via the factory. Route patterns in the
// config must match the patterns registered on the mux.
func ParsePolicy(
	factory rl.LimiterFactory,
	cfg *Config,
	routeFn RouteInfoFunc,
	keyStrategies map[KeyStrategyId]KeyFunc,
) (*RuntimePolicy, error) {
	rtp := &RuntimePolicy{
		policyMap:           make(map[Pattern]map[method]Policy),
		AllowIfNoIdentifier: cfg.AllowIfNoIdentifier,
		AllowIfNoMatch:      cfg.AllowIfNoMatch,
		RouteInfoFn:         routeFn,
	}

	// Default fallback is considered configured only when it has enough
	// information to enforce (window + key strategy).
	if cfg.DefaultPolicy.Window > 0 && cfg.DefaultPolicy.KeyStrategy != "" {
		ks, ok := keyStrategies[cfg.DefaultPolicy.KeyStrategy]
		if !ok {
			return nil, errors.New("quota parse policy: no such default key strategy")
		}

		p := Policy{
			Limiter: factory(cfg.DefaultPolicy.Limit, cfg.DefaultPolicy.Window),
			KeyFn:   ks,
		}

		if cfg.DefaultPolicy.Method != "" {
			rtp.defaultPolicyByMethod = map[method]Policy{
				normalizeMethod(cfg.DefaultPolicy.Method): p,
			}
		} else {
			rtp.defaultPolicy = &p
		}
	}

	for _, r := range cfg.Routes {
		pat := Pattern(r.Pattern)
		if _, ok := rtp.policyMap[pat]; !ok {
			rtp.policyMap[pat] = make(map[method]Policy)
		}

		for _, rule := range r.EndpointRules {
			m := normalizeMethod(rule.Method)
			if _, ok := rtp.policyMap[pat][m]; ok {
				return nil, errors.New("quota parse policy: duplicate method config on same pattern")
			}

			ks, ok := keyStrategies[rule.KeyStrategy]
			if !ok {
				return nil, errors.New("quota parse policy: no such key strategy")
			}

			rtp.policyMap[pat][m] = Policy{
				Limiter: factory(rule.Limit, rule.Window),
				KeyFn:   ks,
			}
		}
	}
	return rtp, nil
}

// NewMiddleware enforces the runtime policy around the wrapped handler.
// Denials answer 429 problem+json with code RATE_LIMIT_EXCEEDED and carry
// X-RateLimit-Limit / X-RateLimit-Remaining / X-RateLimit-Reset headers;
// allowed responses carry the same headers.
func NewMiddleware(p *RuntimePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			routeInfo := p.RouteInfoFn(r)
			if routeInfo.Method == "" {
				slog.Error("no method found",
					slog.String("middleware", "quota"),
					slog.String("url", r.URL.Path),
					slog.Any("route_info", routeInfo),
				)
				problem.Write(w, problem.MethodNotAllowed("method not allowed"))
				return
			}

			px, ok, src := p.findPolicy(routeInfo)
			if !ok {
				if p.AllowIfNoMatch {
					next.ServeHTTP(w, r)
					return
				}
				slog.Warn("no quota policy found",
					slog.String("middleware", "quota"),
					slog.String("url", r.URL.Path),
					slog.Any("route_info", routeInfo),
				)
				problem.Write(w, problem.TooManyRequests(http.StatusText(http.StatusTooManyRequests)))
				return
			}

			if src != policySourceExplicit {
				slog.Debug("using default quota policy",
					slog.String("middleware", "quota"),
					slog.String("url", r.URL.Path),
					slog.String("policy_source", string(src)),
				)
			}

			if px.KeyFn == nil {
				if !p.AllowIfNoIdentifier {
					slog.Warn("no quota key func found",
						slog.String("middleware", "quota"),
						slog.String("url", r.URL.Path),
					)
					problem.Write(w, problem.TooManyRequests(http.StatusText(http.StatusTooManyRequests)))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			key := px.KeyFn(r)
			if key == "" {
				if p.AllowIfNoIdentifier {
					next.ServeHTTP(w, r)
					return
				}
				slog.Warn("no identifier extracted",
					slog.String("middleware", "quota"),
					slog.String("url", r.URL.Path),
				)
				problem.Write(w, problem.TooManyRequests(http.StatusText(http.StatusTooManyRequests)))
				return
			}

			result, err := px.Limiter.Check(r.Context(), key)
			if err != nil {
				// Unreachable when the limiter is wrapped in a Degrader;
				// kept for limiters wired without one.
				slog.Error("quota check error",
					slog.Any("error", err),
					slog.String("url", r.URL.Path),
				)
				problem.Write(w, problem.Internal(http.StatusText(http.StatusInternalServerError)))
				return
			}

			if p.OnDecision != nil {
				p.OnDecision(r.Context(), result.Allowed)
			}

			// Handlers may set headers of their own before the response
			// commits, so apply ours lazily at first write.
			w = &rateLimitHeaderWriter{ResponseWriter: w, result: result}

			if !result.Allowed {
				slog.Debug("quota exceeded",
					slog.String("middleware", "quota"),
					slog.String("url", r.URL.Path),
					slog.String("key", string(key)),
				)
				problem.Write(w, problem.TooManyRequests(http.StatusText(http.StatusTooManyRequests)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, result rl.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	// epoch milliseconds, consistent with the store-derived reset time
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.UnixMilli(), 10))
}

type rateLimitHeaderWriter struct {
	http.ResponseWriter
	result  rl.Result
	ensured bool
}

func (w *rateLimitHeaderWriter) ensure() {
	if w.ensured {
		return
	}
	writeRateLimitHeaders(w.ResponseWriter, w.result)
	w.ensured = true
}

func (w *rateLimitHeaderWriter) WriteHeader(statusCode int) {
	w.ensure()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *rateLimitHeaderWriter) Write(p []byte) (int, error) {
	w.ensure()
	return w.ResponseWriter.Write(p)
}

func (w *rateLimitHeaderWriter) Flush() {
	w.ensure()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
