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

	"quotaguard/modules/api/serde"
	"quotaguard/modules/middleware/problem"
	"quotaguard/modules/quota"
)

// QuotaStatus reports the verdict a check would produce without spending a
// unit. Identifier and optional limit/windowMs come from the query string.
func (a *QuotaAPI) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identifier := q.Get("identifier")
	if identifier == "" {
		writeProblem(w, r, problem.BadRequest("missing identifier",
			problem.WithInvalidParam("identifier", "must not be empty")))
		return
	}

	var limit, windowMs int64
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			writeProblem(w, r, problem.BadRequest("invalid limit",
				problem.WithInvalidParam("limit", "must be a positive integer")))
			return
		}
		limit = parsed
	}
	if v := q.Get("windowMs"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			writeProblem(w, r, problem.BadRequest("invalid windowMs",
				problem.WithInvalidParam("windowMs", "must be a positive integer")))
			return
		}
		windowMs = parsed
	}

	limiter, _, _ := a.limiterFor(limit, windowMs)
	res, err := limiter.Status(r.Context(), quota.Key(identifier))
	if err != nil {
		slog.ErrorContext(r.Context(), "quota status failed", slog.Any("error", err))
		writeProblem(w, r, problem.Internal("quota evaluation failed"))
		return
	}

	setRateLimitHeaders(w, res)
	serde.WriteJSON(w, http.StatusOK, toVerdictResponse(res))
}
