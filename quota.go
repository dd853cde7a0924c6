package learngate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/learngate/entitlement"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/subscription"
)

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

// GetSubscription returns the stored subscription for userID.
func (g *Gateway) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	return g.store.GetSubscription(ctx, userID)
}

// GetOrCreateSubscription returns the user's subscription, creating a free
// one with zeroed counters if none exists. The boolean reports whether this
// call created it.
func (g *Gateway) GetOrCreateSubscription(ctx context.Context, userID string) (*subscription.Subscription, bool, error) {
	return g.getOrCreate(ctx, userID, g.clock())
}

func (g *Gateway) getOrCreate(ctx context.Context, userID string, now time.Time) (*subscription.Subscription, bool, error) {
	sub, err := g.store.GetSubscription(ctx, userID)
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, false, fmt.Errorf("learngate: get subscription: %w", err)
	}

	sub = subscription.NewFree(userID, now)
	err = g.store.CreateSubscription(ctx, sub)
	switch {
	case err == nil:
		g.plugins.EmitSubscriptionCreated(ctx, sub)
		g.logger.Info("subscription created", "user_id", userID, "tier", sub.Tier)
		return sub, true, nil
	case errors.Is(err, ErrSubscriptionExists):
		// Lost the create race to a concurrent request.
		sub, err = g.store.GetSubscription(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("learngate: get subscription: %w", err)
		}
		return sub, false, nil
	default:
		return nil, false, fmt.Errorf("learngate: create subscription: %w", err)
	}
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// Admit decides whether userID may invoke featureKey now. A denial is a
// Decision with Allowed false, not an error; errors are store failures.
//
// Admit and RecordUsage are separate steps so a failed generation is never
// charged. Two concurrent requests at the limit boundary can both be
// admitted.
func (g *Gateway) Admit(ctx context.Context, userID, featureKey string) (*entitlement.Decision, error) {
	now := g.clock()

	sub, created, err := g.getOrCreate(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	decision, err := g.decide(ctx, sub, created, featureKey, now)
	if err != nil {
		return nil, err
	}

	g.plugins.EmitEntitlementChecked(ctx, decision)
	if !decision.Allowed {
		g.plugins.EmitQuotaExceeded(ctx, userID, featureKey, decision.Used, decision.Limit)
		g.logger.Info("quota exceeded",
			"user_id", userID,
			"feature", featureKey,
			"used", decision.Used,
			"limit", decision.Limit,
		)
	}

	return decision, nil
}

func (g *Gateway) decide(
	ctx context.Context,
	sub *subscription.Subscription,
	created bool,
	featureKey string,
	now time.Time,
) (*entitlement.Decision, error) {
	if created {
		return entitlement.Allow(featureKey, sub.Tier, entitlement.ReasonFirstUse), nil
	}

	if sub.Tier.Unlimited() {
		return entitlement.Allow(featureKey, sub.Tier, entitlement.ReasonPremium), nil
	}

	feature, ok := plan.Lookup(featureKey)
	if !ok {
		return entitlement.Allow(featureKey, sub.Tier, entitlement.ReasonUnknownFeature), nil
	}

	counter := sub.Counter(featureKey)
	if counter == nil || feature.Period.Elapsed(counter.LastReset, now) {
		// Read-modify-write; concurrent resets for the same user are not
		// guarded.
		if err := g.store.ResetUsage(ctx, sub.UserID, featureKey, feature.Period, now); err != nil {
			return nil, fmt.Errorf("learngate: reset usage: %w", err)
		}
		g.plugins.EmitUsageReset(ctx, sub.UserID, featureKey)
		return entitlement.Allow(featureKey, sub.Tier, entitlement.ReasonWindowReset).WithUsage(feature, 0), nil
	}

	if feature.Exhausted(counter.Count) {
		return entitlement.Deny(feature, counter.Count), nil
	}

	return entitlement.Allow(featureKey, sub.Tier, entitlement.ReasonWithinLimit).WithUsage(feature, counter.Count), nil
}

// Check runs Admit and converts a denial into a *QuotaExceededError.
func (g *Gateway) Check(ctx context.Context, userID, featureKey string) (*entitlement.Decision, error) {
	decision, err := g.Admit(ctx, userID, featureKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return decision, &QuotaExceededError{Decision: decision}
	}
	return decision, nil
}

// RecordUsage charges one use of featureKey to userID. Call it only after
// the guarded operation succeeded. Failures are logged and swallowed.
func (g *Gateway) RecordUsage(ctx context.Context, userID, featureKey string) {
	if err := g.store.IncrementUsage(ctx, userID, featureKey, g.clock()); err != nil {
		g.logger.Warn("failed to record usage",
			"user_id", userID,
			"feature", featureKey,
			"error", err,
		)
		return
	}
	g.plugins.EmitUsageRecorded(ctx, userID, featureKey)
}
