package store

import (
	"context"
	"time"

	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

// Store is the unified storage interface for all learngate documents.
// Methods are declared explicitly rather than embedding the per-entity
// interfaces, so each backend is checked against the full surface.
type Store interface {
	// Subscription methods
	GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error)
	CreateSubscription(ctx context.Context, sub *subscription.Subscription) error
	ResetUsage(ctx context.Context, userID, feature string, period plan.Period, at time.Time) error
	IncrementUsage(ctx context.Context, userID, feature string, at time.Time) error
	UpgradeToPremium(ctx context.Context, userID string, up subscription.Upgrade) error

	// Transaction methods
	CreateTransaction(ctx context.Context, t *transaction.Transaction) error
	GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Transaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error)
	SetCorrelation(ctx context.Context, txID id.TransactionID, c transaction.Correlation, at time.Time) error
	Resolve(ctx context.Context, txID id.TransactionID, r transaction.Resolution, at time.Time) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ subscription.Store = Store(nil)
	_ transaction.Store  = Store(nil)
)
