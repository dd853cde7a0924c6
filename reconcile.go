package learngate

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/transaction"
)

// Provider result codes understood by the reconciliation poller.
const (
	ResultCodeSuccess   = "0"
	ResultCodeCancelled = "1032"
)

// pendingResultCodes mean the provider has not settled the payment yet.
var pendingResultCodes = map[string]bool{
	"4999":         true, // transaction still under processing
	"500.001.1001": true, // request is being processed
}

// StatusForResultCode maps a status-query result code to a local status.
// ok is false when the code means the payment is still pending.
func StatusForResultCode(code string) (status transaction.Status, ok bool) {
	switch {
	case code == ResultCodeSuccess:
		return transaction.StatusCompleted, true
	case code == ResultCodeCancelled:
		return transaction.StatusCancelled, true
	case pendingResultCodes[code]:
		return transaction.StatusPending, false
	default:
		return transaction.StatusFailed, true
	}
}

// GetTransaction returns a stored transaction. Malformed ids are reported as
// not found.
func (g *Gateway) GetTransaction(ctx context.Context, rawID string) (*transaction.Transaction, error) {
	txID, err := id.ParseTransactionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, rawID)
	}
	return g.store.GetTransaction(ctx, txID)
}

// PaymentStatus is RefreshStatus for a client that must own the transaction.
func (g *Gateway) PaymentStatus(ctx context.Context, rawID, userID string) (*transaction.Transaction, error) {
	txn, err := g.GetTransaction(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, ErrForbidden
	}
	return g.refresh(ctx, txn)
}

// RefreshStatus returns the transaction, first asking the provider for the
// current result when it is still pending. Provider errors are logged and
// the stored snapshot is returned.
func (g *Gateway) RefreshStatus(ctx context.Context, rawID string) (*transaction.Transaction, error) {
	txn, err := g.GetTransaction(ctx, rawID)
	if err != nil {
		return nil, err
	}
	return g.refresh(ctx, txn)
}

func (g *Gateway) refresh(ctx context.Context, txn *transaction.Transaction) (*transaction.Transaction, error) {
	if txn.Status != transaction.StatusPending || txn.CheckoutRequestID == "" || g.provider == nil {
		return txn, nil
	}

	result, err := g.provider.QueryStatus(ctx, txn.CheckoutRequestID)
	if err != nil {
		g.logger.Warn("payment status query failed",
			"transaction_id", txn.ID.String(),
			"checkout_request_id", txn.CheckoutRequestID,
			"error", err,
		)
		return txn, nil
	}

	next, settled := StatusForResultCode(result.ResultCode)
	if !settled || next == txn.Status {
		return txn, nil
	}

	res := transaction.Resolution{
		Status:     next,
		ResultCode: result.ResultCode,
		ResultDesc: result.ResultDesc,
	}
	if next != transaction.StatusCompleted {
		res.Error = result.ResultDesc
	}

	err = g.store.Resolve(ctx, txn.ID, res, g.clock())
	if errors.Is(err, ErrTransactionSettled) {
		// A callback won the race; report what it wrote.
		return g.store.GetTransaction(ctx, txn.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("learngate: reconcile transaction: %w", err)
	}

	from := txn.Status
	res.Apply(txn, g.clock())
	g.plugins.EmitStatusReconciled(ctx, txn, string(from), string(next))
	g.logger.Info("payment status reconciled",
		"transaction_id", txn.ID.String(),
		"from", from,
		"to", next,
		"result_code", result.ResultCode,
	)

	if next == transaction.StatusCompleted {
		g.plugins.EmitPaymentCompleted(ctx, txn)
		if err := g.upgrade(ctx, txn, "", 0); err != nil {
			return nil, err
		}
	} else {
		g.plugins.EmitPaymentFailed(ctx, txn, string(next))
	}

	return txn, nil
}
