package postgres

import (
	"testing"
	"time"

	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

func TestSubscriptionModelRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	up := subscription.NewUpgrade(subscription.PaymentDetails{
		Provider:      "mpesa",
		TransactionID: "txn_01h2xcejqtf2nbrexx3vqjhp41",
		Receipt:       "NLJ7RT61SV",
		Amount:        1500,
		Currency:      "KES",
		PaidAt:        now,
	}, now)
	sub := subscription.NewPremium("u1", up)
	sub.Usage["retired"] = &subscription.UsageCounter{Count: 4, LastReset: now}

	m := toSubscriptionModel(sub)
	counters := toUsageCounterModels(sub.UserID, sub.Usage)
	if len(counters) != len(plan.Features)+1 {
		t.Fatalf("counters = %d", len(counters))
	}
	if counters[0].Feature != plan.Features[0].Key {
		t.Fatalf("first counter = %s, want catalog order", counters[0].Feature)
	}

	got, err := fromSubscriptionModel(m, counters)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tier != plan.TierPremium || got.PaymentDetails == nil || got.PaymentDetails.Receipt != "NLJ7RT61SV" {
		t.Fatalf("subscription = %+v", got)
	}
	if got.Usage["retired"].Count != 4 {
		t.Fatal("unknown feature counter was dropped")
	}
	if !got.NextBillingDate.Equal(now.Add(subscription.BillingPeriod)) {
		t.Fatalf("nextBillingDate = %v", got.NextBillingDate)
	}
}

func TestFreeSubscriptionHasNoPaymentDetails(t *testing.T) {
	sub := subscription.NewFree("u1", time.Now())
	got, err := fromSubscriptionModel(toSubscriptionModel(sub), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentDetails != nil {
		t.Fatalf("payment details = %+v", got.PaymentDetails)
	}
}

func TestResolutionColumnsSkipEmptyFields(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	cols := resolutionColumns(transaction.Resolution{
		Status: transaction.StatusTimeout,
		Error:  "Payment timeout - User did not complete payment",
	}, at)

	names := make(map[string]any, len(cols))
	for _, c := range cols {
		names[c.name] = c.value
	}
	if len(names) != 3 {
		t.Fatalf("columns = %v", names)
	}
	if names["status"] != "timeout" || names["updated_at"] != at {
		t.Fatalf("columns = %v", names)
	}
	if _, ok := names["mpesa_receipt_number"]; ok {
		t.Fatal("empty receipt must not be written")
	}
}
