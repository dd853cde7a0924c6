package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
	"github.com/xraph/learngate/types"
)

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:learngate_subscriptions"`

	ID              string                       `grove:"id,pk"             bson:"_id"`
	UserID          string                       `grove:"user_id"           bson:"user_id"`
	Tier            string                       `grove:"tier"              bson:"tier"`
	Status          string                       `grove:"status"            bson:"status"`
	Usage           map[string]usageCounterModel `grove:"usage"             bson:"usage"`
	PaymentDetails  *paymentDetailsModel         `grove:"payment_details"   bson:"payment_details,omitempty"`
	UpgradedAt      *time.Time                   `grove:"upgraded_at"       bson:"upgraded_at,omitempty"`
	PremiumSince    *time.Time                   `grove:"premium_since"     bson:"premium_since,omitempty"`
	NextBillingDate *time.Time                   `grove:"next_billing_date" bson:"next_billing_date,omitempty"`
	CreatedAt       time.Time                    `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time                    `grove:"updated_at"        bson:"updated_at"`
}

type usageCounterModel struct {
	Count       int64      `bson:"count"`
	LastReset   time.Time  `bson:"last_reset"`
	ResetPeriod string     `bson:"reset_period"`
	LastUsed    *time.Time `bson:"last_used,omitempty"`
}

type paymentDetailsModel struct {
	Provider      string    `bson:"provider"`
	TransactionID string    `bson:"transaction_id"`
	Receipt       string    `bson:"mpesa_receipt_number"`
	Amount        int64     `bson:"amount"`
	Currency      string    `bson:"currency"`
	PaidAt        time.Time `bson:"paid_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	usage := make(map[string]usageCounterModel, len(s.Usage))
	for k, c := range s.Usage {
		usage[k] = toUsageCounterModel(c)
	}
	return &subscriptionModel{
		ID:              s.UserID,
		UserID:          s.UserID,
		Tier:            string(s.Tier),
		Status:          string(s.Status),
		Usage:           usage,
		PaymentDetails:  toPaymentDetailsModel(s.PaymentDetails),
		UpgradedAt:      s.UpgradedAt,
		PremiumSince:    s.PremiumSince,
		NextBillingDate: s.NextBillingDate,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	usage := make(map[string]*subscription.UsageCounter, len(m.Usage))
	for k, c := range m.Usage {
		usage[k] = &subscription.UsageCounter{
			Count:       c.Count,
			LastReset:   c.LastReset.UTC(),
			ResetPeriod: plan.Period(c.ResetPeriod),
			LastUsed:    utcPtr(c.LastUsed),
		}
	}

	var pd *subscription.PaymentDetails
	if m.PaymentDetails != nil {
		pd = &subscription.PaymentDetails{
			Provider:      m.PaymentDetails.Provider,
			TransactionID: m.PaymentDetails.TransactionID,
			Receipt:       m.PaymentDetails.Receipt,
			Amount:        m.PaymentDetails.Amount,
			Currency:      m.PaymentDetails.Currency,
			PaidAt:        m.PaymentDetails.PaidAt.UTC(),
		}
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		UserID:          m.UserID,
		Tier:            plan.Tier(m.Tier),
		Status:          subscription.Status(m.Status),
		Usage:           usage,
		PaymentDetails:  pd,
		UpgradedAt:      utcPtr(m.UpgradedAt),
		PremiumSince:    utcPtr(m.PremiumSince),
		NextBillingDate: utcPtr(m.NextBillingDate),
	}
}

func toUsageCounterModel(c *subscription.UsageCounter) usageCounterModel {
	return usageCounterModel{
		Count:       c.Count,
		LastReset:   c.LastReset,
		ResetPeriod: string(c.ResetPeriod),
		LastUsed:    c.LastUsed,
	}
}

func toPaymentDetailsModel(p *subscription.PaymentDetails) *paymentDetailsModel {
	if p == nil {
		return nil
	}
	return &paymentDetailsModel{
		Provider:      p.Provider,
		TransactionID: p.TransactionID,
		Receipt:       p.Receipt,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaidAt:        p.PaidAt,
	}
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:learngate_transactions"`

	ID                 string    `grove:"id,pk"                bson:"_id"`
	UserID             string    `grove:"user_id"              bson:"user_id"`
	PhoneNumber        string    `grove:"phone_number"         bson:"phone_number"`
	Amount             int64     `grove:"amount"               bson:"amount"`
	SubscriptionTier   string    `grove:"subscription_tier"    bson:"subscription_tier"`
	Provider           string    `grove:"provider"             bson:"provider"`
	Status             string    `grove:"status"               bson:"status"`
	CheckoutRequestID  string    `grove:"checkout_request_id"  bson:"checkout_request_id,omitempty"`
	MerchantRequestID  string    `grove:"merchant_request_id"  bson:"merchant_request_id,omitempty"`
	ResponseCode       string    `grove:"response_code"        bson:"response_code,omitempty"`
	MpesaReceiptNumber string    `grove:"mpesa_receipt_number" bson:"mpesa_receipt_number,omitempty"`
	TransactionDate    string    `grove:"transaction_date"     bson:"transaction_date,omitempty"`
	PaidAmount         int64     `grove:"paid_amount"          bson:"paid_amount,omitempty"`
	Error              string    `grove:"error"                bson:"error,omitempty"`
	ResultCode         string    `grove:"result_code"          bson:"result_code,omitempty"`
	ResultDesc         string    `grove:"result_desc"          bson:"result_desc,omitempty"`
	CreatedAt          time.Time `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"           bson:"updated_at"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:                 t.ID.String(),
		UserID:             t.UserID,
		PhoneNumber:        t.PhoneNumber,
		Amount:             t.Amount,
		SubscriptionTier:   string(t.SubscriptionTier),
		Provider:           t.Provider,
		Status:             string(t.Status),
		CheckoutRequestID:  t.CheckoutRequestID,
		MerchantRequestID:  t.MerchantRequestID,
		ResponseCode:       t.ResponseCode,
		MpesaReceiptNumber: t.MpesaReceiptNumber,
		TransactionDate:    t.TransactionDate,
		PaidAmount:         t.PaidAmount,
		Error:              t.Error,
		ResultCode:         t.ResultCode,
		ResultDesc:         t.ResultDesc,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse transaction id: %w", err)
	}
	return &transaction.Transaction{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                 txID,
		UserID:             m.UserID,
		PhoneNumber:        m.PhoneNumber,
		Amount:             m.Amount,
		SubscriptionTier:   plan.Tier(m.SubscriptionTier),
		Provider:           m.Provider,
		Status:             transaction.Status(m.Status),
		CheckoutRequestID:  m.CheckoutRequestID,
		MerchantRequestID:  m.MerchantRequestID,
		ResponseCode:       m.ResponseCode,
		MpesaReceiptNumber: m.MpesaReceiptNumber,
		TransactionDate:    m.TransactionDate,
		PaidAmount:         m.PaidAmount,
		Error:              m.Error,
		ResultCode:         m.ResultCode,
		ResultDesc:         m.ResultDesc,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
