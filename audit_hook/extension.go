// Package audithook bridges learngate lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. LogRecorder writes events through slog;
// callers with a dedicated trail inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/learngate/plugin"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnSubscriptionUpgraded = (*Extension)(nil)
	_ plugin.OnQuotaExceeded        = (*Extension)(nil)
	_ plugin.OnUsageReset           = (*Extension)(nil)
	_ plugin.OnGeneration           = (*Extension)(nil)
	_ plugin.OnPaymentInitiated     = (*Extension)(nil)
	_ plugin.OnPaymentRejected      = (*Extension)(nil)
	_ plugin.OnPaymentCompleted     = (*Extension)(nil)
	_ plugin.OnPaymentFailed        = (*Extension)(nil)
	_ plugin.OnCallbackReceived     = (*Extension)(nil)
	_ plugin.OnStatusReconciled     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events as structured log records.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a Recorder logging through logger.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, event *AuditEvent) error {
	level := slog.LevelInfo
	switch event.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError, SeverityCritical:
		level = slog.LevelError
	}

	attrs := []any{
		"action", event.Action,
		"resource", event.Resource,
		"category", event.Category,
		"outcome", event.Outcome,
	}
	if event.ResourceID != "" {
		attrs = append(attrs, "resource_id", event.ResourceID)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	r.logger.Log(ctx, level, "audit", attrs...)
	return nil
}

// Extension bridges learngate lifecycle events to an audit trail backend.
type Extension struct {
	recorder    Recorder
	enabled     map[string]bool // nil = all enabled
	minSeverity int
	logger      *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub interface{}) error {
	var userID, tier string
	if s, ok := sub.(*subscription.Subscription); ok && s != nil {
		userID, tier = s.UserID, string(s.Tier)
	}
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, userID, CategorySubscription, nil,
		"tier", tier,
	)
}

// OnSubscriptionUpgraded implements plugin.OnSubscriptionUpgraded.
func (e *Extension) OnSubscriptionUpgraded(ctx context.Context, userID string, txn interface{}) error {
	kv := []any{"user_id", userID}
	if t, ok := txn.(*transaction.Transaction); ok && t != nil {
		kv = append(kv,
			"transaction_id", t.ID.String(),
			"tier", string(t.SubscriptionTier),
			"receipt", t.MpesaReceiptNumber,
		)
	}
	return e.record(ctx, ActionSubscriptionUpgraded, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, userID, CategorySubscription, nil,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (e *Extension) OnQuotaExceeded(ctx context.Context, userID, featureKey string, used, limit int64) error {
	return e.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomeFailure,
		ResourceUsage, featureKey, CategoryAccess, nil,
		"user_id", userID,
		"feature", featureKey,
		"used", used,
		"limit", limit,
	)
}

// OnUsageReset implements plugin.OnUsageReset.
func (e *Extension) OnUsageReset(ctx context.Context, userID, featureKey string) error {
	return e.record(ctx, ActionUsageReset, SeverityInfo, OutcomeSuccess,
		ResourceUsage, featureKey, CategoryAccess, nil,
		"user_id", userID,
		"feature", featureKey,
	)
}

// ──────────────────────────────────────────────────
// Generation hooks
// ──────────────────────────────────────────────────

// OnGeneration implements plugin.OnGeneration. Only failures are audited.
func (e *Extension) OnGeneration(ctx context.Context, featureKey string, elapsed time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return e.record(ctx, ActionGenerationFailed, SeverityError, OutcomeFailure,
		ResourceGeneration, featureKey, CategoryIntegration, err,
		"feature", featureKey,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated implements plugin.OnPaymentInitiated.
func (e *Extension) OnPaymentInitiated(ctx context.Context, txn interface{}) error {
	id, kv := txnAttrs(txn)
	return e.record(ctx, ActionPaymentInitiated, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, id, CategoryPayment, nil,
		kv...,
	)
}

// OnPaymentRejected implements plugin.OnPaymentRejected.
func (e *Extension) OnPaymentRejected(ctx context.Context, txn interface{}, reason string) error {
	id, kv := txnAttrs(txn)
	return e.record(ctx, ActionPaymentRejected, SeverityWarning, OutcomeFailure,
		ResourceTransaction, id, CategoryPayment, nil,
		append(kv, "rejection_reason", reason)...,
	)
}

// OnPaymentCompleted implements plugin.OnPaymentCompleted.
func (e *Extension) OnPaymentCompleted(ctx context.Context, txn interface{}) error {
	id, kv := txnAttrs(txn)
	if t, ok := txn.(*transaction.Transaction); ok && t != nil {
		kv = append(kv, "receipt", t.MpesaReceiptNumber, "paid_amount", t.PaidAmount)
	}
	return e.record(ctx, ActionPaymentCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, id, CategoryPayment, nil,
		kv...,
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, txn interface{}, status string) error {
	id, kv := txnAttrs(txn)
	kv = append(kv, "status", status)
	if t, ok := txn.(*transaction.Transaction); ok && t != nil {
		kv = append(kv, "result_code", t.ResultCode, "result_desc", t.ResultDesc)
	}
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourceTransaction, id, CategoryPayment, nil,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Provider hooks
// ──────────────────────────────────────────────────

// OnCallbackReceived implements plugin.OnCallbackReceived. The payload
// carries customer phone numbers and is not copied into the event.
func (e *Extension) OnCallbackReceived(ctx context.Context, provider string, payload []byte) error {
	return e.record(ctx, ActionCallbackReceived, SeverityInfo, OutcomeSuccess,
		ResourceProvider, provider, CategoryIntegration, nil,
		"provider", provider,
		"payload_bytes", len(payload),
	)
}

// OnStatusReconciled implements plugin.OnStatusReconciled.
func (e *Extension) OnStatusReconciled(ctx context.Context, txn interface{}, from, to string) error {
	id, kv := txnAttrs(txn)
	return e.record(ctx, ActionStatusReconciled, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, id, CategoryPayment, nil,
		append(kv, "from", from, "to", to)...,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func txnAttrs(txn interface{}) (string, []any) {
	t, ok := txn.(*transaction.Transaction)
	if !ok || t == nil {
		return "", nil
	}
	return t.ID.String(), []any{
		"user_id", t.UserID,
		"provider", t.Provider,
		"amount", t.Amount,
		"checkout_request_id", t.CheckoutRequestID,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if severityRank[severity] < e.minSeverity {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
