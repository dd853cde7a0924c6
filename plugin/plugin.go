// Package plugin provides an extensible plugin system for learngate.
// Plugins can hook into quota and payment lifecycle events to extend
// functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the gateway starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, gw interface{}) error
}

// OnShutdown is called when the gateway is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a user's subscription is lazily
// created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub interface{}) error
}

// OnSubscriptionUpgraded is called after a payment moves a user to premium.
type OnSubscriptionUpgraded interface {
	Plugin
	OnSubscriptionUpgraded(ctx context.Context, userID string, txn interface{}) error
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called after every admission decision.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, decision interface{}) error
}

// OnQuotaExceeded is called when a free-tier user is denied.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, userID, featureKey string, used, limit int64) error
}

// OnUsageReset is called when a counter's window elapses and it is zeroed.
type OnUsageReset interface {
	Plugin
	OnUsageReset(ctx context.Context, userID, featureKey string) error
}

// OnUsageRecorded is called after a successful counter increment.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, userID, featureKey string) error
}

// ──────────────────────────────────────────────────
// Generation hooks
// ──────────────────────────────────────────────────

// OnGeneration is called after each call to the text generator.
type OnGeneration interface {
	Plugin
	OnGeneration(ctx context.Context, featureKey string, elapsed time.Duration, err error) error
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated is called when the provider accepts a push.
type OnPaymentInitiated interface {
	Plugin
	OnPaymentInitiated(ctx context.Context, txn interface{}) error
}

// OnPaymentRejected is called when the provider refuses a push.
type OnPaymentRejected interface {
	Plugin
	OnPaymentRejected(ctx context.Context, txn interface{}, reason string) error
}

// OnPaymentCompleted is called on the pending to completed transition.
type OnPaymentCompleted interface {
	Plugin
	OnPaymentCompleted(ctx context.Context, txn interface{}) error
}

// OnPaymentFailed is called on a transition to failed, cancelled or timeout.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, txn interface{}, status string) error
}

// OnCallbackReceived is called for every provider notification before it
// is processed.
type OnCallbackReceived interface {
	Plugin
	OnCallbackReceived(ctx context.Context, provider string, payload []byte) error
}

// OnStatusReconciled is called when a status query changes a transaction.
type OnStatusReconciled interface {
	Plugin
	OnStatusReconciled(ctx context.Context, txn interface{}, from, to string) error
}
