// Package plan holds the static quota configuration: subscription tiers,
// quota-governed features, and the reset windows they accumulate over.
package plan

import "time"

// Tier is a subscription level governing quota limits.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPremium
}

// Unlimited reports whether the tier bypasses all usage counters.
func (t Tier) Unlimited() bool { return t == TierPremium }

// Period is the window a usage counter accumulates over before reset.
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// Week is the length of a weekly window.
const Week = 7 * 24 * time.Hour

// Elapsed reports whether the window that started at lastReset has closed
// by now. Daily windows close when the UTC calendar date changes. Weekly
// windows close once at least seven full days have passed. A zero lastReset
// is always elapsed.
func (p Period) Elapsed(lastReset, now time.Time) bool {
	if lastReset.IsZero() {
		return true
	}

	switch p {
	case PeriodDaily:
		ly, lm, ld := lastReset.UTC().Date()
		ny, nm, nd := now.UTC().Date()
		return ly != ny || lm != nm || ld != nd
	case PeriodWeekly:
		return int64(now.Sub(lastReset)/Week) >= 1
	default:
		return false
	}
}

// Feature is a quota-governed operation with its free-tier allowance.
type Feature struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Limit  int64  `json:"limit"`
	Period Period `json:"period"`
}

// Exhausted reports whether count has used up the feature's allowance.
func (f Feature) Exhausted(count int64) bool {
	return count >= f.Limit
}
