package subscription

import (
	"context"
	"time"

	"github.com/xraph/learngate/plan"
)

// Store persists subscriptions. Create must be an atomic create-if-absent
// and IncrementUsage a single atomic update on the stored document.
type Store interface {
	// GetSubscription returns the subscription for userID or an error
	// wrapping learngate.ErrSubscriptionNotFound.
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	// CreateSubscription inserts sub unless a document for the user already
	// exists, in which case it returns learngate.ErrSubscriptionExists.
	CreateSubscription(ctx context.Context, sub *Subscription) error
	// ResetUsage zeroes one counter and starts its window at at.
	ResetUsage(ctx context.Context, userID, feature string, period plan.Period, at time.Time) error
	// IncrementUsage adds one to a counter and stamps lastUsed.
	IncrementUsage(ctx context.Context, userID, feature string, at time.Time) error
	// UpgradeToPremium moves the user to premium, creating the document with
	// zeroed counters if it does not exist.
	UpgradeToPremium(ctx context.Context, userID string, up Upgrade) error
}
