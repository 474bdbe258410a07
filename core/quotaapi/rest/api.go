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

package rest

import (
	"net/http"
	"strings"
	"time"

	"quotaguard/modules/hmac"
	"quotaguard/modules/middleware"
	"quotaguard/modules/middleware/problem"
	"quotaguard/modules/quota"
	"quotaguard/modules/server"
	"quotaguard/modules/usage"
)

// writeProblem stamps the request id into the problem document before
// writing it, so error responses correlate with logs and traces.
func writeProblem(w http.ResponseWriter, r *http.Request, p *problem.Problem) {
	if id := middleware.RequestIDFrom(r.Context()); id != "" {
		problem.WithTraceID(id)(p)
	}
	problem.Write(w, p)
}

var _ server.RegistrableService = (*QuotaAPI)(nil)

// QuotaAPI is the REST adapter over the quota core and the per-user usage
// accounting. It translates HTTP requests into limiter and usage-service
// calls; quota exhaustion surfaces as a verdict, never an error.
type QuotaAPI struct {
	factory quota.LimiterFactory
	usage   *usage.Service
	signer  *hmac.HMACSigner

	// Applied when a request omits limit/window.
	defaultLimit  int64
	defaultWindow time.Duration
}

func NewQuotaAPI(factory quota.LimiterFactory, usageSvc *usage.Service, signer *hmac.HMACSigner, defaultLimit int64, defaultWindow time.Duration) *QuotaAPI {
	return &QuotaAPI{
		factory:       factory,
		usage:         usageSvc,
		signer:        signer,
		defaultLimit:  defaultLimit,
		defaultWindow: defaultWindow,
	}
}

// Register mounts the quota API routes using Go 1.22 method patterns.
func (a *QuotaAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/quota/check", a.QuotaCheck)
	mux.HandleFunc("GET /v1/quota/status", a.QuotaStatus)
	mux.HandleFunc("DELETE /v1/quota/{identifier}", a.QuotaReset)
	mux.HandleFunc("GET /v1/usage/{userID}", a.UsageStatus)
	mux.HandleFunc("POST /v1/usage/{userID}/consume", a.UsageConsume)
	mux.HandleFunc("PUT /v1/usage/{userID}/tier", a.UsageSetTier)
	mux.HandleFunc("GET /v1/tiers", a.ListTiers)
	mux.HandleFunc("GET /healthz", a.Healthz)
}

// Middlewares returns global middlewares required by the quota API. The
// ambient chain (telemetry, request id, recovery) is wired in main.
func (a *QuotaAPI) Middlewares() []func(http.Handler) http.Handler {
	return nil
}

// limiterFor builds a limiter for the request's effective policy. Falls
// back to the API defaults when the caller does not pin limit/window.
func (a *QuotaAPI) limiterFor(limit int64, windowMs int64) (quota.Limiter, int64, time.Duration) {
	if limit <= 0 {
		limit = a.defaultLimit
	}
	window := time.Duration(windowMs) * time.Millisecond
	if windowMs <= 0 {
		window = a.defaultWindow
	}
	return a.factory(limit, window), limit, window
}

// authorize verifies the admin bearer token minted by the HMAC signer.
func (a *QuotaAPI) authorize(r *http.Request) *problem.Problem {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return problem.Unauthorized("missing bearer token")
	}
	if _, err := a.signer.Verify(token); err != nil {
		return problem.Unauthorized("invalid token")
	}
	return nil
}
