package postgres

import (
	"encoding/json"
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

	UserID          string          `grove:"user_id,pk"`
	Tier            string          `grove:"tier"`
	Status          string          `grove:"status"`
	PaymentDetails  json.RawMessage `grove:"payment_details,type:jsonb"`
	UpgradedAt      *time.Time      `grove:"upgraded_at"`
	PremiumSince    *time.Time      `grove:"premium_since"`
	NextBillingDate *time.Time      `grove:"next_billing_date"`
	CreatedAt       time.Time       `grove:"created_at"`
	UpdatedAt       time.Time       `grove:"updated_at"`
}

type usageCounterModel struct {
	grove.BaseModel `grove:"table:learngate_usage_counters"`

	UserID      string     `grove:"user_id,pk"`
	Feature     string     `grove:"feature,pk"`
	Count       int64      `grove:"count"`
	LastReset   time.Time  `grove:"last_reset"`
	ResetPeriod string     `grove:"reset_period"`
	LastUsed    *time.Time `grove:"last_used"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	var pd json.RawMessage
	if s.PaymentDetails != nil {
		pd, _ = json.Marshal(s.PaymentDetails) //nolint:errcheck // plain struct, cannot fail
	}
	return &subscriptionModel{
		UserID:          s.UserID,
		Tier:            string(s.Tier),
		Status:          string(s.Status),
		PaymentDetails:  pd,
		UpgradedAt:      s.UpgradedAt,
		PremiumSince:    s.PremiumSince,
		NextBillingDate: s.NextBillingDate,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func toUsageCounterModels(userID string, usage map[string]*subscription.UsageCounter) []usageCounterModel {
	models := make([]usageCounterModel, 0, len(usage))
	for _, key := range plan.Keys() {
		if c, ok := usage[key]; ok {
			models = append(models, toUsageCounterModel(userID, key, c))
		}
	}
	// Counters for features no longer in the catalog are kept as-is.
	for key, c := range usage {
		if _, known := plan.Lookup(key); !known {
			models = append(models, toUsageCounterModel(userID, key, c))
		}
	}
	return models
}

func toUsageCounterModel(userID, feature string, c *subscription.UsageCounter) usageCounterModel {
	return usageCounterModel{
		UserID:      userID,
		Feature:     feature,
		Count:       c.Count,
		LastReset:   c.LastReset,
		ResetPeriod: string(c.ResetPeriod),
		LastUsed:    c.LastUsed,
	}
}

func fromSubscriptionModel(m *subscriptionModel, counters []usageCounterModel) (*subscription.Subscription, error) {
	var pd *subscription.PaymentDetails
	if len(m.PaymentDetails) > 0 && string(m.PaymentDetails) != "null" {
		pd = new(subscription.PaymentDetails)
		if err := json.Unmarshal(m.PaymentDetails, pd); err != nil {
			return nil, err
		}
	}

	usage := make(map[string]*subscription.UsageCounter, len(counters))
	for _, c := range counters {
		usage[c.Feature] = &subscription.UsageCounter{
			Count:       c.Count,
			LastReset:   c.LastReset.UTC(),
			ResetPeriod: plan.Period(c.ResetPeriod),
			LastUsed:    utcPtr(c.LastUsed),
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
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:learngate_transactions"`

	ID                 string    `grove:"id,pk"`
	UserID             string    `grove:"user_id"`
	PhoneNumber        string    `grove:"phone_number"`
	Amount             int64     `grove:"amount"`
	SubscriptionTier   string    `grove:"subscription_tier"`
	Provider           string    `grove:"provider"`
	Status             string    `grove:"status"`
	CheckoutRequestID  string    `grove:"checkout_request_id"`
	MerchantRequestID  string    `grove:"merchant_request_id"`
	ResponseCode       string    `grove:"response_code"`
	MpesaReceiptNumber string    `grove:"mpesa_receipt_number"`
	TransactionDate    string    `grove:"transaction_date"`
	PaidAmount         int64     `grove:"paid_amount"`
	Error              string    `grove:"error"`
	ResultCode         string    `grove:"result_code"`
	ResultDesc         string    `grove:"result_desc"`
	CreatedAt          time.Time `grove:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"`
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
		return nil, err
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
