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

	"quotaguard/modules/api/serde"
	"quotaguard/modules/middleware/problem"
	"quotaguard/modules/tier"
	"quotaguard/modules/usage"
)

type (
	consumeRequest struct {
		Units int64 `json:"units,omitempty"`
	}

	setTierRequest struct {
		Tier string `json:"tier"`
	}

	usageResponse struct {
		UserID       string `json:"userId"`
		Tier         string `json:"tier"`
		Allowed      bool   `json:"allowed"`
		Remaining    int64  `json:"remaining"`
		Unlimited    bool   `json:"unlimited"`
		DailyCount   int64  `json:"dailyCount"`
		MonthlyCount int64  `json:"monthlyCount"`
	}
)

func toUsageResponse(v usage.Verdict) usageResponse {
	return usageResponse{
		UserID:       v.Record.UserID,
		Tier:         string(v.Tier),
		Allowed:      v.Allowed,
		Remaining:    v.Remaining,
		Unlimited:    v.Unlimited,
		DailyCount:   v.Record.Count,
		MonthlyCount: v.Record.MonthlyCount,
	}
}

// UsageStatus reports a user's remaining tier quota without consuming.
func (a *QuotaAPI) UsageStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		writeProblem(w, r, problem.BadRequest("missing user id"))
		return
	}

	v, err := a.usage.Status(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "usage status failed",
			slog.String("user_id", userID), slog.Any("error", err))
		writeProblem(w, r, problem.Internal("usage lookup failed"))
		return
	}
	serde.WriteJSON(w, http.StatusOK, toUsageResponse(v))
}

// UsageConsume spends quota units for a user. Exhaustion is 429 with a
// QUOTA_EXCEEDED problem document.
func (a *QuotaAPI) UsageConsume(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		writeProblem(w, r, problem.BadRequest("missing user id"))
		return
	}

	var req consumeRequest
	if err := serde.ParseJsonBody(r.Body, &req); err != nil {
		writeProblem(w, r, problem.BadRequest("malformed request body"))
		return
	}

	v, err := a.usage.Consume(r.Context(), userID, req.Units)
	if err != nil {
		slog.ErrorContext(r.Context(), "usage consume failed",
			slog.String("user_id", userID), slog.Any("error", err))
		writeProblem(w, r, problem.Internal("usage update failed"))
		return
	}
	if !v.Allowed {
		writeProblem(w, r, problem.TooManyRequests("tier quota exhausted",
			problem.WithCode(problem.CodeQuotaExceeded),
			problem.WithExtension("tier", string(v.Tier)),
			problem.WithExtension("remaining", v.Remaining),
		))
		return
	}
	serde.WriteJSON(w, http.StatusOK, toUsageResponse(v))
}

// UsageSetTier moves a user onto a new tier. Admin-only.
func (a *QuotaAPI) UsageSetTier(w http.ResponseWriter, r *http.Request) {
	if prob := a.authorize(r); prob != nil {
		writeProblem(w, r, prob)
		return
	}

	userID := r.PathValue("userID")
	if userID == "" {
		writeProblem(w, r, problem.BadRequest("missing user id"))
		return
	}

	var req setTierRequest
	if err := serde.ParseJsonBody(r.Body, &req); err != nil {
		writeProblem(w, r, problem.BadRequest("malformed request body"))
		return
	}
	t := tier.Tier(req.Tier)
	if !t.Valid() {
		writeProblem(w, r, problem.BadRequest("unknown tier",
			problem.WithInvalidParam("tier", "must be one of free, starter, creator, pro, unlimited")))
		return
	}

	rec, err := a.usage.SetTier(r.Context(), userID, t)
	if err != nil {
		slog.ErrorContext(r.Context(), "set tier failed",
			slog.String("user_id", userID), slog.Any("error", err))
		writeProblem(w, r, problem.Internal("tier update failed"))
		return
	}
	remaining, unlimited := tier.RemainingUnits(rec.Tier, rec.Count, rec.MonthlyCount)
	serde.WriteJSON(w, http.StatusOK, usageResponse{
		UserID:       rec.UserID,
		Tier:         string(rec.Tier),
		Allowed:      !tier.HasReachedLimit(rec.Tier, rec.Count, rec.MonthlyCount),
		Remaining:    remaining,
		Unlimited:    unlimited,
		DailyCount:   rec.Count,
		MonthlyCount: rec.MonthlyCount,
	})
}
