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

// Package tier holds the static subscription policy table and the
// tier-aware quota resolver. The table is immutable and loaded at process
// start; exactly one accounting period applies per tier (free is metered
// per day, paid tiers per calendar month, unlimited not at all).
package tier

// Tier is a named subscription level.
type Tier string

const (
	Free      Tier = "free"
	Starter   Tier = "starter"
	Creator   Tier = "creator"
	Pro       Tier = "pro"
	Unlimited Tier = "unlimited"
)

// PolicyVersion changes whenever the table below does; it feeds the ETag
// on the tier listing endpoint.
const PolicyVersion = "2026-08"

// Policy is one tier's limits and feature flags. The quota core consumes
// the limits; the flags ride along for policy decisions by the calling
// layer (batch sizing, output watermarking, queue priority, API keys).
type Policy struct {
	Tier Tier `json:"tier"`

	// DailyLimit applies only to tiers metered per day; MonthlyLimit only
	// to tiers metered per month. Zero means the field does not apply.
	DailyLimit   int64 `json:"dailyLimit,omitempty"`
	MonthlyLimit int64 `json:"monthlyLimit,omitempty"`

	BatchSizeCap      int  `json:"batchSizeCap"`
	WatermarkRequired bool `json:"watermarkRequired"`
	PriorityQueue     bool `json:"priorityQueue"`
	APIAccess         bool `json:"apiAccess"`
}

var policies = map[Tier]Policy{
	Free: {
		Tier:              Free,
		DailyLimit:        10,
		BatchSizeCap:      5,
		WatermarkRequired: true,
	},
	Starter: {
		Tier:         Starter,
		MonthlyLimit: 200,
		BatchSizeCap: 25,
	},
	Creator: {
		Tier:          Creator,
		MonthlyLimit:  600,
		BatchSizeCap:  50,
		PriorityQueue: true,
	},
	Pro: {
		Tier:          Pro,
		MonthlyLimit:  2000,
		BatchSizeCap:  100,
		PriorityQueue: true,
		APIAccess:     true,
	},
	Unlimited: {
		Tier:          Unlimited,
		BatchSizeCap:  250,
		PriorityQueue: true,
		APIAccess:     true,
	},
}

// Lookup returns the policy for t. An unknown or empty tier falls back to
// free, the safe default.
func Lookup(t Tier) Policy {
	p, ok := policies[t]
	if !ok {
		return policies[Free]
	}
	return p
}

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool {
	_, ok := policies[t]
	return ok
}

// All returns the policy table in a stable order.
func All() []Policy {
	out := make([]Policy, 0, len(policies))
	for _, t := range []Tier{Free, Starter, Creator, Pro, Unlimited} {
		out = append(out, policies[t])
	}
	return out
}
