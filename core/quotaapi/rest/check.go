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
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"quotaguard/modules/api/serde"
	"quotaguard/modules/middleware/problem"
	"quotaguard/modules/quota"
)

type (
	checkRequest struct {
		Identifier string `json:"identifier"`
		Limit      int64  `json:"limit,omitempty"`
		WindowMs   int64  `json:"windowMs,omitempty"`
	}

	verdictResponse struct {
		Allowed   bool  `json:"allowed"`
		Remaining int64 `json:"remaining"`
		Limit     int64 `json:"limit"`
		ResetTime int64 `json:"resetTime"` // epoch milliseconds
	}
)

func toVerdictResponse(res quota.Result) verdictResponse {
	return verdictResponse{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		Limit:     res.Limit,
		ResetTime: res.ResetAt.UnixMilli(),
	}
}

func setRateLimitHeaders(w http.ResponseWriter, res quota.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.UnixMilli(), 10))
}

// QuotaCheck consumes one unit for an explicit identifier and returns the
// verdict. A denied request is 429 with a problem document; the verdict
// fields ride along as extensions so callers need not parse headers.
func (a *QuotaAPI) QuotaCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := serde.ParseJsonBody(r.Body, &req); err != nil {
		writeProblem(w, r, problem.BadRequest("malformed request body"))
		return
	}
	if req.Identifier == "" {
		writeProblem(w, r, problem.BadRequest("missing identifier",
			problem.WithInvalidParam("identifier", "must not be empty")))
		return
	}

	limiter, _, _ := a.limiterFor(req.Limit, req.WindowMs)
	res, err := limiter.Check(r.Context(), quota.Key(req.Identifier))
	if err != nil {
		// only reachable without the degradation decorator
		slog.ErrorContext(r.Context(), "quota check failed", slog.Any("error", err))
		writeProblem(w, r, problem.Internal("quota evaluation failed"))
		return
	}

	setRateLimitHeaders(w, res)
	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(secondsUntil(res), 10))
		writeProblem(w, r, problem.TooManyRequests("rate limit exceeded",
			problem.WithExtension("remaining", res.Remaining),
			problem.WithExtension("limit", res.Limit),
			problem.WithExtension("resetTime", res.ResetAt.UnixMilli()),
		))
		return
	}
	serde.WriteJSON(w, http.StatusOK, toVerdictResponse(res))
}

// secondsUntil rounds the wait up so clients never retry early.
func secondsUntil(res quota.Result) int64 {
	d := time.Until(res.ResetAt)
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
