// Package observability provides a metrics extension for learngate that
// records quota, generation and payment lifecycle counts through a
// MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/learngate/entitlement"
	"github.com/xraph/learngate/plugin"
	"github.com/xraph/learngate/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionUpgraded = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked   = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded        = (*MetricsExtension)(nil)
	_ plugin.OnUsageReset           = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded        = (*MetricsExtension)(nil)
	_ plugin.OnGeneration           = (*MetricsExtension)(nil)
	_ plugin.OnPaymentInitiated     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRejected      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed        = (*MetricsExtension)(nil)
	_ plugin.OnCallbackReceived     = (*MetricsExtension)(nil)
	_ plugin.OnStatusReconciled     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a learngate plugin to track quota and payment activity.
type MetricsExtension struct {
	factory MetricFactory

	// Subscription metrics
	SubscriptionCreated  Counter
	SubscriptionUpgraded Counter

	// Quota metrics
	QuotaChecks    Counter
	QuotaAllowed   Counter
	QuotaDenied    Counter
	QuotaPremium   Counter
	UsageRecorded  Counter
	UsageResets    Counter
	QuotaRemaining Histogram

	// Generation metrics
	GenerationCalls   Counter
	GenerationErrors  Counter
	GenerationLatency Histogram

	// Payment metrics
	PaymentInitiated Counter
	PaymentRejected  Counter
	PaymentCompleted Counter
	PaymentFailed    Counter
	PaymentCancelled Counter
	PaymentTimeout   Counter
	PaymentAmount    Histogram

	// Provider metrics
	CallbackReceived Counter
	StatusReconciled Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory. Use NewPrometheusFactory for a prometheus-backed factory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		SubscriptionCreated:  factory.Counter("learngate.subscription.created"),
		SubscriptionUpgraded: factory.Counter("learngate.subscription.upgraded"),

		QuotaChecks:    factory.Counter("learngate.quota.checks"),
		QuotaAllowed:   factory.Counter("learngate.quota.allowed"),
		QuotaDenied:    factory.Counter("learngate.quota.denied"),
		QuotaPremium:   factory.Counter("learngate.quota.premium"),
		UsageRecorded:  factory.Counter("learngate.usage.recorded"),
		UsageResets:    factory.Counter("learngate.usage.resets"),
		QuotaRemaining: factory.Histogram("learngate.quota.remaining"),

		GenerationCalls:   factory.Counter("learngate.generation.calls"),
		GenerationErrors:  factory.Counter("learngate.generation.errors"),
		GenerationLatency: factory.Histogram("learngate.generation.latency_ms"),

		PaymentInitiated: factory.Counter("learngate.payment.initiated"),
		PaymentRejected:  factory.Counter("learngate.payment.rejected"),
		PaymentCompleted: factory.Counter("learngate.payment.completed"),
		PaymentFailed:    factory.Counter("learngate.payment.failed"),
		PaymentCancelled: factory.Counter("learngate.payment.cancelled"),
		PaymentTimeout:   factory.Counter("learngate.payment.timeout"),
		PaymentAmount:    factory.Histogram("learngate.payment.amount"),

		CallbackReceived: factory.Counter("learngate.callback.received"),
		StatusReconciled: factory.Counter("learngate.status.reconciled"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ interface{}) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionUpgraded implements plugin.OnSubscriptionUpgraded.
func (m *MetricsExtension) OnSubscriptionUpgraded(_ context.Context, _ string, _ interface{}) error {
	m.SubscriptionUpgraded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, decision interface{}) error {
	m.QuotaChecks.Inc()

	d, ok := decision.(*entitlement.Decision)
	if !ok || d == nil {
		return nil
	}
	switch {
	case !d.Allowed:
		// Counted by OnQuotaExceeded.
	case d.Reason == entitlement.ReasonPremium:
		m.QuotaPremium.Inc()
		m.QuotaAllowed.Inc()
	default:
		m.QuotaAllowed.Inc()
		if d.Limit > 0 {
			m.QuotaRemaining.Observe(float64(d.Remaining))
		}
	}
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _, _ string, _, _ int64) error {
	m.QuotaDenied.Inc()
	return nil
}

// OnUsageReset implements plugin.OnUsageReset.
func (m *MetricsExtension) OnUsageReset(_ context.Context, _, _ string) error {
	m.UsageResets.Inc()
	return nil
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, _, _ string) error {
	m.UsageRecorded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Generation hooks
// ──────────────────────────────────────────────────

// OnGeneration implements plugin.OnGeneration.
func (m *MetricsExtension) OnGeneration(_ context.Context, _ string, elapsed time.Duration, err error) error {
	m.GenerationCalls.Inc()
	m.GenerationLatency.Observe(float64(elapsed.Milliseconds()))
	if err != nil {
		m.GenerationErrors.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated implements plugin.OnPaymentInitiated.
func (m *MetricsExtension) OnPaymentInitiated(_ context.Context, _ interface{}) error {
	m.PaymentInitiated.Inc()
	return nil
}

// OnPaymentRejected implements plugin.OnPaymentRejected.
func (m *MetricsExtension) OnPaymentRejected(_ context.Context, _ interface{}, _ string) error {
	m.PaymentRejected.Inc()
	return nil
}

// OnPaymentCompleted implements plugin.OnPaymentCompleted.
func (m *MetricsExtension) OnPaymentCompleted(_ context.Context, txn interface{}) error {
	m.PaymentCompleted.Inc()
	if t, ok := txn.(*transaction.Transaction); ok && t != nil {
		amount := t.PaidAmount
		if amount == 0 {
			amount = t.Amount
		}
		m.PaymentAmount.Observe(float64(amount))
	}
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ interface{}, status string) error {
	switch transaction.Status(status) {
	case transaction.StatusCancelled:
		m.PaymentCancelled.Inc()
	case transaction.StatusTimeout:
		m.PaymentTimeout.Inc()
	default:
		m.PaymentFailed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnCallbackReceived implements plugin.OnCallbackReceived.
func (m *MetricsExtension) OnCallbackReceived(_ context.Context, _ string, _ []byte) error {
	m.CallbackReceived.Inc()
	return nil
}

// OnStatusReconciled implements plugin.OnStatusReconciled.
func (m *MetricsExtension) OnStatusReconciled(_ context.Context, _ interface{}, _, _ string) error {
	m.StatusReconciled.Inc()
	return nil
}
