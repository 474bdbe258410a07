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
	"fmt"
	"net/http"

	"quotaguard/modules/api/serde"
	"quotaguard/modules/etag"
	"quotaguard/modules/tier"
)

// policyTable tags the static tier table with its version for ETag purposes.
type policyTable struct{}

func (policyTable) V() string { return tier.PolicyVersion }

type tiersResponse struct {
	Version string        `json:"version"`
	Tiers   []tier.Policy `json:"tiers"`
}

// ListTiers returns the tier policy table. The table only changes with a
// deploy, so conditional requests short-circuit to 304.
func (a *QuotaAPI) ListTiers(w http.ResponseWriter, r *http.Request) {
	table := policyTable{}
	w.Header().Set("ETag", fmt.Sprintf("%q", etag.ETag(table)))
	if etag.Match(r.Header.Get("If-None-Match"), table) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	serde.WriteJSON(w, http.StatusOK, tiersResponse{
		Version: tier.PolicyVersion,
		Tiers:   tier.All(),
	})
}
