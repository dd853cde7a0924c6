package audithook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	audithook "github.com/xraph/learngate/audit_hook"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/transaction"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func newTxn() *transaction.Transaction {
	txn := transaction.New("u1", "254712345678", 500, plan.TierPremium, "mpesa", time.Now())
	txn.CheckoutRequestID = "ws_CO_1"
	return txn
}

func TestPaymentEvents(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	ctx := context.Background()
	txn := newTxn()

	_ = ext.OnPaymentInitiated(ctx, txn)
	txn.MpesaReceiptNumber = "NLJ7RT61SV"
	_ = ext.OnPaymentCompleted(ctx, txn)
	_ = ext.OnSubscriptionUpgraded(ctx, "u1", txn)

	want := []string{
		audithook.ActionPaymentInitiated,
		audithook.ActionPaymentCompleted,
		audithook.ActionSubscriptionUpgraded,
	}
	if got := rec.actions(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("actions = %v, want %v", got, want)
	}

	completed := rec.events[1]
	if completed.ResourceID != txn.ID.String() || completed.Metadata["receipt"] != "NLJ7RT61SV" {
		t.Fatalf("unexpected completed event: %+v", completed)
	}
	if completed.Metadata["checkout_request_id"] != "ws_CO_1" {
		t.Fatalf("missing checkout id: %v", completed.Metadata)
	}
}

func TestPaymentFailedCarriesStatus(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	txn := newTxn()
	txn.ResultCode = "1032"
	txn.ResultDesc = "Request cancelled by user"

	_ = ext.OnPaymentFailed(context.Background(), txn, string(transaction.StatusCancelled))

	evt := rec.events[0]
	if evt.Outcome != audithook.OutcomeFailure || evt.Severity != audithook.SeverityWarning {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Metadata["status"] != "cancelled" || evt.Metadata["result_code"] != "1032" {
		t.Fatalf("unexpected metadata: %v", evt.Metadata)
	}
}

func TestGenerationOnlyAuditsFailures(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	ctx := context.Background()

	_ = ext.OnGeneration(ctx, plan.FeatureAITutorQueries, time.Second, nil)
	_ = ext.OnGeneration(ctx, plan.FeatureAITutorQueries, time.Second, errors.New("upstream 503"))

	if len(rec.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rec.events))
	}
	if rec.events[0].Reason != "upstream 503" {
		t.Fatalf("reason = %q", rec.events[0].Reason)
	}
}

func TestCallbackPayloadNotCopied(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	_ = ext.OnCallbackReceived(context.Background(), "mpesa", []byte(`{"PhoneNumber":254712345678}`))

	evt := rec.events[0]
	raw, _ := json.Marshal(evt)
	if strings.Contains(string(raw), "254712345678") {
		t.Fatalf("payload leaked into event: %s", raw)
	}
	if evt.Metadata["payload_bytes"] != 28 {
		t.Fatalf("payload_bytes = %v", evt.Metadata["payload_bytes"])
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionQuotaExceeded))
	_ = ext.OnUsageReset(ctx, "u1", plan.FeatureTaskGeneration)
	_ = ext.OnQuotaExceeded(ctx, "u1", plan.FeatureTaskGeneration, 3, 3)
	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionQuotaExceeded {
		t.Fatalf("enabled filter: %v", got)
	}

	rec = &memRecorder{}
	ext = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionCallbackReceived))
	_ = ext.OnCallbackReceived(ctx, "mpesa", nil)
	_ = ext.OnUsageReset(ctx, "u1", plan.FeatureTaskGeneration)
	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionUsageReset {
		t.Fatalf("disabled filter: %v", got)
	}
}

func TestMinSeverity(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithMinSeverity(audithook.SeverityWarning))
	ctx := context.Background()

	_ = ext.OnUsageReset(ctx, "u1", plan.FeatureTaskGeneration)
	_ = ext.OnQuotaExceeded(ctx, "u1", plan.FeatureTaskGeneration, 3, 3)
	_ = ext.OnGeneration(ctx, plan.FeatureTaskGeneration, time.Second, errors.New("boom"))

	want := []string{audithook.ActionQuotaExceeded, audithook.ActionGenerationFailed}
	if got := rec.actions(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
			return errors.New("trail down")
		}),
		audithook.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)

	if err := ext.OnUsageReset(context.Background(), "u1", plan.FeatureTaskGeneration); err != nil {
		t.Fatalf("hook returned %v", err)
	}
	if !strings.Contains(buf.String(), "trail down") {
		t.Fatalf("recorder failure not logged: %s", buf.String())
	}
}

func TestLogRecorderLevels(t *testing.T) {
	var buf bytes.Buffer
	ext := audithook.New(audithook.NewLogRecorder(slog.New(slog.NewJSONHandler(&buf, nil))))

	_ = ext.OnQuotaExceeded(context.Background(), "u1", plan.FeatureAITutorQueries, 20, 20)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["level"] != "WARN" || line["action"] != audithook.ActionQuotaExceeded || line["resource_id"] != plan.FeatureAITutorQueries {
		t.Fatalf("unexpected log line: %v", line)
	}
}
