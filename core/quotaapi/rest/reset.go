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

	"quotaguard/modules/middleware/problem"
	"quotaguard/modules/quota"
)

// QuotaReset discards the identifier's current window. Requires an admin
// bearer token. Resetting an identifier with no active window still
// returns 204; the operation is idempotent.
func (a *QuotaAPI) QuotaReset(w http.ResponseWriter, r *http.Request) {
	if prob := a.authorize(r); prob != nil {
		writeProblem(w, r, prob)
		return
	}

	identifier := r.PathValue("identifier")
	if identifier == "" {
		writeProblem(w, r, problem.BadRequest("missing identifier",
			problem.WithInvalidParam("identifier", "must not be empty")))
		return
	}

	limiter, _, _ := a.limiterFor(0, 0)
	if err := limiter.Reset(r.Context(), quota.Key(identifier)); err != nil {
		slog.ErrorContext(r.Context(), "quota reset failed",
			slog.String("identifier", identifier),
			slog.Any("error", err),
		)
		writeProblem(w, r, problem.Internal("quota reset failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
