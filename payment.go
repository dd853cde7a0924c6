package learngate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xraph/learngate/payment"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
	"github.com/xraph/learngate/types"
)

const (
	// DefaultCustomerMessage is returned when the provider accepts a push
	// without a customer-facing message.
	DefaultCustomerMessage = "Please check your phone to complete payment"

	// TimeoutMessage is recorded on transactions moved to timeout.
	TimeoutMessage = "Payment timeout - User did not complete payment"

	narrativePrefix = "Premium Subscription - "
)

// InitiateInput is a client request to start a payment.
type InitiateInput struct {
	PhoneNumber string
	Amount      float64
	UserID      string
	Tier        plan.Tier
}

// InitiateResult is returned when the provider accepted the push.
type InitiateResult struct {
	TransactionID     string `json:"transactionId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	CustomerMessage   string `json:"message"`
}

// ──────────────────────────────────────────────────
// Initiation
// ──────────────────────────────────────────────────

// Initiate validates the request, records a pending transaction and asks the
// provider to push a payment prompt to the customer's phone. A rejected push
// leaves the transaction failed and returns an error wrapping
// ErrPaymentRejected.
func (g *Gateway) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if g.provider == nil {
		return nil, ErrProviderUnavailable
	}

	verrs := &ValidationErrors{}
	if in.UserID == "" {
		verrs.Add("userId", "userId is required")
	}
	phone, err := g.provider.Validate(in.PhoneNumber, in.Amount)
	if err != nil {
		var fieldErrs payment.FieldErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("learngate: validate payment: %w", err)
		}
		for _, fe := range fieldErrs {
			verrs.Add(fe.Field, fe.Message)
		}
	}
	if verrs.HasErrors() {
		return nil, verrs
	}

	now := g.clock()
	txn := transaction.New(in.UserID, phone, int64(math.Round(in.Amount)), in.Tier, g.provider.Name(), now)
	if err := g.store.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("learngate: create transaction: %w", err)
	}

	resp, pushErr := g.provider.Push(ctx, payment.PushRequest{
		PhoneNumber:      phone,
		Amount:           txn.Amount,
		AccountReference: in.UserID,
		Narrative:        narrativePrefix + txn.ID.Short(8),
	})
	if pushErr != nil || resp == nil || !resp.Accepted {
		reason := rejectionReason(resp, pushErr)
		g.logger.Warn("payment push rejected",
			"transaction_id", txn.ID.String(),
			"user_id", in.UserID,
			"reason", reason,
		)
		if err := g.store.Resolve(ctx, txn.ID, transaction.Resolution{
			Status: transaction.StatusFailed,
			Error:  reason,
		}, g.clock()); err != nil {
			return nil, fmt.Errorf("learngate: mark transaction failed: %w", err)
		}
		txn.Status = transaction.StatusFailed
		txn.Error = reason
		g.plugins.EmitPaymentRejected(ctx, txn, reason)
		return nil, fmt.Errorf("%w: %s", ErrPaymentRejected, reason)
	}

	corr := transaction.Correlation{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		ResponseCode:      resp.ResponseCode,
	}
	if err := g.store.SetCorrelation(ctx, txn.ID, corr, g.clock()); err != nil {
		return nil, fmt.Errorf("learngate: set correlation: %w", err)
	}
	txn.CheckoutRequestID = corr.CheckoutRequestID
	txn.MerchantRequestID = corr.MerchantRequestID
	txn.ResponseCode = corr.ResponseCode

	g.plugins.EmitPaymentInitiated(ctx, txn)
	g.logger.Info("payment initiated",
		"transaction_id", txn.ID.String(),
		"user_id", in.UserID,
		"checkout_request_id", corr.CheckoutRequestID,
		"amount", types.KES(txn.Amount).String(),
	)

	msg := resp.CustomerMessage
	if msg == "" {
		msg = DefaultCustomerMessage
	}
	return &InitiateResult{
		TransactionID:     txn.ID.String(),
		CheckoutRequestID: corr.CheckoutRequestID,
		CustomerMessage:   msg,
	}, nil
}

func rejectionReason(resp *payment.PushResponse, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case resp != nil && resp.ErrorMessage != "":
		return resp.ErrorMessage
	default:
		return "payment request was not accepted"
	}
}

// ──────────────────────────────────────────────────
// Provider notifications
// ──────────────────────────────────────────────────

// HandleCallback applies an asynchronous payment result. The returned ack is
// Accepted for every outcome the provider should not retry, including an
// unknown checkout request id, and Failed only when parsing or the store
// failed.
func (g *Gateway) HandleCallback(ctx context.Context, body []byte) payment.Ack {
	if g.provider == nil {
		return payment.Failed
	}
	g.plugins.EmitCallbackReceived(ctx, g.provider.Name(), body)

	result, err := g.provider.ParseCallback(body)
	if err != nil {
		g.logger.Error("payment callback parse failed", "error", err)
		return payment.Failed
	}

	txn, err := g.store.FindByCheckoutRequestID(ctx, result.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			g.logger.Warn("payment callback for unknown transaction",
				"checkout_request_id", result.CheckoutRequestID,
			)
			return payment.Accepted
		}
		g.logger.Error("payment callback lookup failed",
			"checkout_request_id", result.CheckoutRequestID,
			"error", err,
		)
		return payment.Failed
	}

	if result.Succeeded() {
		err = g.complete(ctx, txn, result)
	} else {
		err = g.fail(ctx, txn, transaction.Resolution{
			Status:     transaction.StatusFailed,
			Error:      result.ResultDesc,
			ResultCode: fmt.Sprint(result.ResultCode),
			ResultDesc: result.ResultDesc,
		})
	}
	if err != nil {
		g.logger.Error("payment callback processing failed",
			"transaction_id", txn.ID.String(),
			"error", err,
		)
		return payment.Failed
	}
	return payment.Accepted
}

// HandleTimeout moves a still-pending transaction to timeout. A late
// notification for a settled transaction is a no-op.
func (g *Gateway) HandleTimeout(ctx context.Context, body []byte) payment.Ack {
	if g.provider == nil {
		return payment.Failed
	}
	g.plugins.EmitCallbackReceived(ctx, g.provider.Name(), body)

	checkoutID, err := g.provider.ParseTimeout(body)
	if err != nil {
		g.logger.Error("payment timeout parse failed", "error", err)
		return payment.Failed
	}

	txn, err := g.store.FindByCheckoutRequestID(ctx, checkoutID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			g.logger.Warn("payment timeout for unknown transaction", "checkout_request_id", checkoutID)
			return payment.Accepted
		}
		g.logger.Error("payment timeout lookup failed", "checkout_request_id", checkoutID, "error", err)
		return payment.Failed
	}

	if err := g.fail(ctx, txn, transaction.Resolution{
		Status: transaction.StatusTimeout,
		Error:  TimeoutMessage,
	}); err != nil {
		g.logger.Error("payment timeout processing failed",
			"transaction_id", txn.ID.String(),
			"error", err,
		)
		return payment.Failed
	}
	return payment.Accepted
}

// complete applies a successful result. The upgrade is re-applied when the
// transaction was already completed, so a duplicate success is harmless and
// the billing date is recomputed from now rather than extended.
func (g *Gateway) complete(ctx context.Context, txn *transaction.Transaction, result *payment.CallbackResult) error {
	switch txn.Status {
	case transaction.StatusPending:
		res := transaction.Resolution{
			Status:          transaction.StatusCompleted,
			Receipt:         result.Receipt,
			TransactionDate: result.TransactionDate,
			PaidAmount:      result.Amount,
			ResultCode:      fmt.Sprint(result.ResultCode),
			ResultDesc:      result.ResultDesc,
		}
		err := g.store.Resolve(ctx, txn.ID, res, g.clock())
		switch {
		case err == nil:
			res.Apply(txn, g.clock())
			g.plugins.EmitPaymentCompleted(ctx, txn)
		case errors.Is(err, ErrTransactionSettled):
			// A concurrent notification settled it first.
			fresh, getErr := g.store.GetTransaction(ctx, txn.ID)
			if getErr != nil {
				return getErr
			}
			if fresh.Status != transaction.StatusCompleted {
				g.logger.Warn("payment success ignored for settled transaction",
					"transaction_id", txn.ID.String(),
					"status", fresh.Status,
				)
				return nil
			}
			txn = fresh
		default:
			return err
		}
	case transaction.StatusCompleted:
		g.logger.Info("duplicate payment success, re-applying upgrade", "transaction_id", txn.ID.String())
	default:
		g.logger.Warn("payment success ignored for settled transaction",
			"transaction_id", txn.ID.String(),
			"status", txn.Status,
		)
		return nil
	}

	return g.upgrade(ctx, txn, result.Receipt, result.Amount)
}

// fail applies a terminal non-success resolution to a pending transaction.
func (g *Gateway) fail(ctx context.Context, txn *transaction.Transaction, res transaction.Resolution) error {
	if txn.Status.IsTerminal() {
		g.logger.Info("payment notification ignored for settled transaction",
			"transaction_id", txn.ID.String(),
			"status", txn.Status,
			"incoming", res.Status,
		)
		return nil
	}

	err := g.store.Resolve(ctx, txn.ID, res, g.clock())
	if errors.Is(err, ErrTransactionSettled) {
		return nil
	}
	if err != nil {
		return err
	}

	res.Apply(txn, g.clock())
	g.plugins.EmitPaymentFailed(ctx, txn, string(res.Status))
	g.logger.Info("payment settled",
		"transaction_id", txn.ID.String(),
		"status", res.Status,
		"result_code", res.ResultCode,
	)
	return nil
}

// upgrade moves the transaction's user to premium.
func (g *Gateway) upgrade(ctx context.Context, txn *transaction.Transaction, receipt string, paid int64) error {
	if receipt == "" {
		receipt = txn.MpesaReceiptNumber
	}
	if paid == 0 {
		paid = txn.PaidAmount
	}
	if paid == 0 {
		paid = txn.Amount
	}

	now := g.clock()
	up := subscription.NewUpgrade(subscription.PaymentDetails{
		Provider:      txn.Provider,
		TransactionID: txn.ID.String(),
		Receipt:       receipt,
		Amount:        paid,
		Currency:      types.CurrencyKES,
		PaidAt:        now,
	}, now)

	if err := g.store.UpgradeToPremium(ctx, txn.UserID, up); err != nil {
		return fmt.Errorf("learngate: upgrade subscription: %w", err)
	}

	g.plugins.EmitSubscriptionUpgraded(ctx, txn.UserID, txn)
	g.logger.Info("subscription upgraded",
		"user_id", txn.UserID,
		"transaction_id", txn.ID.String(),
		"next_billing_date", up.NextBillingDate,
	)
	return nil
}
