package learngate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/learngate/entitlement"
	"github.com/xraph/learngate/gemini"
)

// Generator produces text for a prompt. *gemini.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req gemini.Request) (string, error)
}

var _ Generator = (*gemini.Client)(nil)

// Generate runs a quota-governed generation: admit, call the generator,
// then charge one use on success. An empty featureKey skips the quota steps.
// A denial returns *QuotaExceededError and a store failure during admission
// wraps ErrUsageCheckFailed; generator errors are returned as-is so upstream
// status codes survive.
func (g *Gateway) Generate(ctx context.Context, userID, featureKey string, req gemini.Request) (string, *entitlement.Decision, error) {
	if g.generator == nil {
		return "", nil, ErrGeneratorNotConfigured
	}

	var decision *entitlement.Decision
	if featureKey != "" {
		var err error
		decision, err = g.Check(ctx, userID, featureKey)
		if err != nil {
			if !errors.Is(err, ErrQuotaExceeded) {
				err = fmt.Errorf("%w: %w", ErrUsageCheckFailed, err)
			}
			return "", decision, err
		}
	}

	start := time.Now()
	text, err := g.generator.Generate(ctx, req)
	g.plugins.EmitGeneration(ctx, featureKey, time.Since(start), err)
	if err != nil {
		g.logger.Warn("generation failed",
			"user_id", userID,
			"feature", featureKey,
			"error", err,
		)
		return "", decision, err
	}

	if featureKey != "" {
		g.RecordUsage(ctx, userID, featureKey)
	}

	return text, decision, nil
}
