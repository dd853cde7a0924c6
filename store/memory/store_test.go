package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/store/memory"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestCreateSubscriptionIsCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.CreateSubscription(ctx, subscription.NewFree("u1", t0)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.CreateSubscription(ctx, subscription.NewFree("u1", t0))
	if !errors.Is(err, learngate.ErrSubscriptionExists) {
		t.Fatalf("second create err = %v, want ErrSubscriptionExists", err)
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	_, err := memory.New().GetSubscription(context.Background(), "nobody")
	if !errors.Is(err, learngate.ErrSubscriptionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_ = s.CreateSubscription(ctx, subscription.NewFree("u1", t0))

	got, _ := s.GetSubscription(ctx, "u1")
	got.Usage[plan.FeatureAchievements].Count = 99

	again, _ := s.GetSubscription(ctx, "u1")
	if again.Usage[plan.FeatureAchievements].Count != 0 {
		t.Fatal("mutating a returned subscription changed the store")
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_ = s.CreateSubscription(ctx, subscription.NewFree("u1", t0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementUsage(ctx, "u1", plan.FeatureAITutorQueries, t0)
		}()
	}
	wg.Wait()

	sub, _ := s.GetSubscription(ctx, "u1")
	c := sub.Usage[plan.FeatureAITutorQueries]
	if c.Count != 50 {
		t.Fatalf("count = %d, want 50", c.Count)
	}
	if c.LastUsed == nil || !c.LastUsed.Equal(t0) {
		t.Fatalf("lastUsed = %v", c.LastUsed)
	}
}

func TestResetUsage(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_ = s.CreateSubscription(ctx, subscription.NewFree("u1", t0))
	_ = s.IncrementUsage(ctx, "u1", plan.FeatureTaskGeneration, t0)

	later := t0.Add(8 * 24 * time.Hour)
	if err := s.ResetUsage(ctx, "u1", plan.FeatureTaskGeneration, plan.PeriodWeekly, later); err != nil {
		t.Fatal(err)
	}
	sub, _ := s.GetSubscription(ctx, "u1")
	c := sub.Usage[plan.FeatureTaskGeneration]
	if c.Count != 0 || !c.LastReset.Equal(later) {
		t.Fatalf("counter after reset = %+v", c)
	}
}

func TestUpgradeToPremiumCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	up := subscription.NewUpgrade(subscription.PaymentDetails{Provider: "mpesa", Amount: 500, Currency: "KES"}, t0)
	if err := s.UpgradeToPremium(ctx, "fresh", up); err != nil {
		t.Fatal(err)
	}
	sub, _ := s.GetSubscription(ctx, "fresh")
	if sub.Tier != plan.TierPremium || len(sub.Usage) != len(plan.Features) {
		t.Fatalf("created subscription = %+v", sub)
	}

	_ = s.CreateSubscription(ctx, subscription.NewFree("u1", t0))
	_ = s.IncrementUsage(ctx, "u1", plan.FeatureAchievements, t0)
	if err := s.UpgradeToPremium(ctx, "u1", up); err != nil {
		t.Fatal(err)
	}
	sub, _ = s.GetSubscription(ctx, "u1")
	if sub.Tier != plan.TierPremium {
		t.Fatalf("tier = %s", sub.Tier)
	}
	if sub.Usage[plan.FeatureAchievements].Count != 1 {
		t.Fatal("upgrade must not touch usage counters")
	}
	if !sub.NextBillingDate.Equal(t0.Add(subscription.BillingPeriod)) {
		t.Fatalf("nextBillingDate = %v", sub.NextBillingDate)
	}
}

func TestResolveOnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	txn := transaction.New("u1", "254712345678", 1500, plan.TierPremium, "mpesa", t0)
	if err := s.CreateTransaction(ctx, txn); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCorrelation(ctx, txn.ID, transaction.Correlation{CheckoutRequestID: "ws_CO_1"}, t0); err != nil {
		t.Fatal(err)
	}

	err := s.Resolve(ctx, txn.ID, transaction.Resolution{Status: transaction.StatusCompleted, Receipt: "R1"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Resolve(ctx, txn.ID, transaction.Resolution{Status: transaction.StatusTimeout, Error: "late"}, t0)
	if !errors.Is(err, learngate.ErrTransactionSettled) {
		t.Fatalf("err = %v, want ErrTransactionSettled", err)
	}

	got, err := s.FindByCheckoutRequestID(ctx, "ws_CO_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != transaction.StatusCompleted || got.MpesaReceiptNumber != "R1" || got.Error != "" {
		t.Fatalf("transaction = %+v", got)
	}
}

func TestFindByCheckoutRequestIDNotFound(t *testing.T) {
	_, err := memory.New().FindByCheckoutRequestID(context.Background(), "missing")
	if !errors.Is(err, learngate.ErrTransactionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPingAfterClose(t *testing.T) {
	s := memory.New()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, learngate.ErrStoreClosed) {
		t.Fatalf("err = %v", err)
	}
}
