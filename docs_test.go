package learngate_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/gemini"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/store/memory"
	"github.com/xraph/learngate/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package doc
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use MongoDB in production)
		store := memory.New()

		gw := learngate.New(store,
			learngate.WithLogger(slog.Default()),
			learngate.WithGenerator(&fakeGenerator{text: "Here is your learning path"}),
		)

		ctx := context.Background()
		if err := gw.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer gw.Stop()

		// Two-step admission
		decision, err := gw.Admit(ctx, "firebase-uid-123", plan.FeatureLearningPaths)
		if err != nil {
			t.Fatal(err)
		}

		if decision.Allowed {
			log.Printf("learning path allowed (%s)\n", decision.Reason)
			gw.RecordUsage(ctx, "firebase-uid-123", plan.FeatureLearningPaths)
		} else {
			log.Printf("learning path denied: %s\n", decision.Message)
		}

		// Or let Generate wrap both steps
		text, _, err := gw.Generate(ctx, "firebase-uid-123", plan.FeatureLearningPaths, gemini.Request{
			SystemInstruction: "You are a career coach.",
			UserContent:       "Plan a path to backend engineering.",
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("generated %d bytes\n", len(text))

		sub, err := gw.GetSubscription(ctx, "firebase-uid-123")
		if err != nil {
			t.Fatal(err)
		}
		if got := sub.Usage[plan.FeatureLearningPaths].Count; got != 2 {
			t.Fatalf("learningPaths count = %d, want 2", got)
		}
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		price := types.KES(1500)
		_ = types.Zero("kes") // KSh 0

		_ = price.Add(types.KES(500)) // KSh 2,000
		_ = price.Multiply(2)         // KSh 3,000

		if !price.Within(types.KES(1), types.KES(150000)) {
			t.Fatal("1500 must be a valid push amount")
		}

		if got := price.String(); got != "KSh 1,500" {
			t.Fatalf("String() = %q", got)
		}
	})
}
