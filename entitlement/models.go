// Package entitlement describes the outcome of a quota admission check.
package entitlement

import (
	"fmt"

	"github.com/xraph/learngate/plan"
)

// Reason explains why a decision was reached.
type Reason string

const (
	ReasonFirstUse       Reason = "first_use"       // subscription created by this call
	ReasonPremium        Reason = "premium"         // premium tier bypasses counters
	ReasonUnknownFeature Reason = "unknown_feature" // fail-open
	ReasonWindowReset    Reason = "window_reset"    // counter reset by this call
	ReasonWithinLimit    Reason = "within_limit"
	ReasonLimitReached   Reason = "limit_reached"
)

// Decision is the result of an admission check for one feature invocation.
type Decision struct {
	Allowed   bool        `json:"allowed"`
	Feature   string      `json:"feature"`
	Tier      plan.Tier   `json:"tier"`
	Used      int64       `json:"used"`
	Limit     int64       `json:"limit"`
	Remaining int64       `json:"remaining"`
	Period    plan.Period `json:"period,omitempty"`
	Reason    Reason      `json:"reason"`
	Message   string      `json:"message,omitempty"`
}

// Allow builds an admitting decision.
func Allow(feature string, tier plan.Tier, reason Reason) *Decision {
	return &Decision{Allowed: true, Feature: feature, Tier: tier, Reason: reason}
}

// Deny builds a denying decision for a feature whose allowance is used up.
func Deny(f plan.Feature, used int64) *Decision {
	return &Decision{
		Allowed: false,
		Feature: f.Key,
		Tier:    plan.TierFree,
		Used:    used,
		Limit:   f.Limit,
		Period:  f.Period,
		Reason:  ReasonLimitReached,
		Message: LimitMessage(f),
	}
}

// WithUsage fills in the counter state for an admitting decision.
func (d *Decision) WithUsage(f plan.Feature, used int64) *Decision {
	d.Used = used
	d.Limit = f.Limit
	d.Period = f.Period
	d.Remaining = f.Limit - used
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d
}

// LimitMessage is the user-facing text returned when a feature's allowance
// is exhausted.
func LimitMessage(f plan.Feature) string {
	return fmt.Sprintf("You've reached your %s limit of %d for %s. Upgrade to Premium for unlimited access.",
		f.Period, f.Limit, f.Key)
}
