// Package transaction models a single mobile-money payment attempt and its
// lifecycle from pending to exactly one terminal status.
package transaction

import (
	"time"

	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/types"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Transaction is one payment attempt.
type Transaction struct {
	types.Entity
	ID               id.TransactionID `json:"transactionId"`
	UserID           string           `json:"userId"`
	PhoneNumber      string           `json:"phoneNumber"`
	Amount           int64            `json:"amount"`
	SubscriptionTier plan.Tier        `json:"subscriptionTier"`
	Provider         string           `json:"provider"`
	Status           Status           `json:"status"`

	// Set once the provider accepts the push. CheckoutRequestID is the sole
	// correlation key for callbacks.
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	MerchantRequestID string `json:"merchantRequestId,omitempty"`
	ResponseCode      string `json:"responseCode,omitempty"`

	// Completion only.
	MpesaReceiptNumber string `json:"mpesaReceiptNumber,omitempty"`
	TransactionDate    string `json:"transactionDate,omitempty"`
	PaidAmount         int64  `json:"paidAmount,omitempty"`

	// Failure, timeout or reconciliation.
	Error      string `json:"error,omitempty"`
	ResultCode string `json:"resultCode,omitempty"`
	ResultDesc string `json:"resultDesc,omitempty"`
}

// New returns a pending transaction with a fresh id.
func New(userID, phone string, amount int64, tier plan.Tier, provider string, now time.Time) *Transaction {
	if tier == "" {
		tier = plan.TierPremium
	}
	return &Transaction{
		Entity:           types.NewEntityAt(now),
		ID:               id.NewTransactionID(),
		UserID:           userID,
		PhoneNumber:      phone,
		Amount:           amount,
		SubscriptionTier: tier,
		Provider:         provider,
		Status:           StatusPending,
	}
}

// Money returns the requested amount in KES.
func (t *Transaction) Money() types.Money {
	return types.KES(t.Amount)
}

// Correlation holds the identifiers returned by an accepted push.
type Correlation struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResponseCode      string
}

// Resolution is a terminal transition. Only fields relevant to Status are
// expected to be set; empty fields are left untouched by stores.
type Resolution struct {
	Status          Status
	Receipt         string
	TransactionDate string
	PaidAmount      int64
	Error           string
	ResultCode      string
	ResultDesc      string
}

// Apply copies the resolution onto t. Callers are responsible for the
// pending-only guard.
func (r Resolution) Apply(t *Transaction, at time.Time) {
	t.Status = r.Status
	if r.Receipt != "" {
		t.MpesaReceiptNumber = r.Receipt
	}
	if r.TransactionDate != "" {
		t.TransactionDate = r.TransactionDate
	}
	if r.PaidAmount != 0 {
		t.PaidAmount = r.PaidAmount
	}
	if r.Error != "" {
		t.Error = r.Error
	}
	if r.ResultCode != "" {
		t.ResultCode = r.ResultCode
	}
	if r.ResultDesc != "" {
		t.ResultDesc = r.ResultDesc
	}
	t.Touch(at)
}
