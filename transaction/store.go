package transaction

import (
	"context"
	"time"

	"github.com/xraph/learngate/id"
)

// Store persists transactions.
type Store interface {
	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, txID id.TransactionID) (*Transaction, error)
	// FindByCheckoutRequestID returns the first transaction carrying the
	// checkout request id.
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error)
	SetCorrelation(ctx context.Context, txID id.TransactionID, c Correlation, at time.Time) error
	// Resolve applies r only while the stored status is pending. It returns
	// learngate.ErrTransactionSettled when the transaction is already
	// terminal, and learngate.ErrTransactionNotFound when it does not exist.
	Resolve(ctx context.Context, txID id.TransactionID, r Resolution, at time.Time) error
}
