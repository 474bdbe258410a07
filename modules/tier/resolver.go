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

package tier

import "time"

// DailyPeriod is the exact elapsed time after which a daily counter is due
// for reset.
const DailyPeriod = 24 * time.Hour

// HasReachedLimit reports whether the caller has exhausted their tier's
// allowance. Free (or unknown) tiers compare the daily counter against the
// daily ceiling; unlimited never caps; paid tiers compare the monthly
// counter against the monthly ceiling.
func HasReachedLimit(t Tier, dailyCount, monthlyCount int64) bool {
	p := Lookup(t)
	switch p.Tier {
	case Unlimited:
		return false
	case Free:
		return dailyCount >= p.DailyLimit
	default:
		return monthlyCount >= p.MonthlyLimit
	}
}

// RemainingUnits mirrors HasReachedLimit's branching and returns the units
// left in the caller's current period, floored at 0. unlimited is true for
// the unlimited tier, in which case n is meaningless.
func RemainingUnits(t Tier, dailyCount, monthlyCount int64) (n int64, unlimited bool) {
	p := Lookup(t)
	switch p.Tier {
	case Unlimited:
		return 0, true
	case Free:
		n = p.DailyLimit - dailyCount
	default:
		n = p.MonthlyLimit - monthlyCount
	}
	if n < 0 {
		n = 0
	}
	return n, false
}

// NeedsDailyReset reports whether a daily counter last reset at lastReset
// is due: strictly more than 24 hours have elapsed, or no reset was ever
// recorded.
func NeedsDailyReset(lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	return now.Sub(lastReset) > DailyPeriod
}

// NeedsMonthlyReset reports whether a monthly counter is due. Comparison is
// by calendar month and year fields, not elapsed time: a user resets on
// month rollover regardless of how many days that month had.
func NeedsMonthlyReset(lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}
	return lastReset.Month() != now.Month() || lastReset.Year() != now.Year()
}
