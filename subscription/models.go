package subscription

import (
	"time"

	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/types"
)

// Status of a subscription. Only StatusActive is checked by the quota ledger.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// BillingPeriod is how long a premium payment lasts before the next charge.
const BillingPeriod = 30 * 24 * time.Hour

// Subscription is the per-user quota and billing document, keyed by user id.
type Subscription struct {
	types.Entity
	UserID          string                   `json:"userId"`
	Tier            plan.Tier                `json:"tier"`
	Status          Status                   `json:"status"`
	Usage           map[string]*UsageCounter `json:"usage"`
	PaymentDetails  *PaymentDetails          `json:"paymentDetails,omitempty"`
	UpgradedAt      *time.Time               `json:"upgradedAt,omitempty"`
	PremiumSince    *time.Time               `json:"premiumSince,omitempty"`
	NextBillingDate *time.Time               `json:"nextBillingDate,omitempty"`
}

// UsageCounter tracks one feature's consumption within its current window.
type UsageCounter struct {
	Count       int64       `json:"count"`
	LastReset   time.Time   `json:"lastReset"`
	ResetPeriod plan.Period `json:"resetPeriod"`
	LastUsed    *time.Time  `json:"lastUsed,omitempty"`
}

// PaymentDetails records the payment that last upgraded the subscription.
type PaymentDetails struct {
	Provider      string    `json:"provider"`
	TransactionID string    `json:"transactionId"`
	Receipt       string    `json:"mpesaReceiptNumber"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paidAt"`
}

// Money returns the paid amount as a Money value.
func (p PaymentDetails) Money() types.Money {
	return types.Money{Amount: p.Amount, Currency: p.Currency}
}

// Upgrade carries everything needed to move a user onto the premium tier.
// It is applied as an upsert and is safe to apply more than once.
type Upgrade struct {
	Payment         PaymentDetails
	At              time.Time
	NextBillingDate time.Time
}

// NewUpgrade builds an upgrade effective at now, with the next billing date
// computed from now rather than from any prior value.
func NewUpgrade(payment PaymentDetails, now time.Time) Upgrade {
	now = now.UTC()
	return Upgrade{
		Payment:         payment,
		At:              now,
		NextBillingDate: now.Add(BillingPeriod),
	}
}

// ZeroUsage returns a fresh counter for every catalog feature, each window
// starting at now.
func ZeroUsage(now time.Time) map[string]*UsageCounter {
	now = now.UTC()
	usage := make(map[string]*UsageCounter, len(plan.Features))
	for _, f := range plan.Features {
		usage[f.Key] = &UsageCounter{
			Count:       0,
			LastReset:   now,
			ResetPeriod: f.Period,
		}
	}
	return usage
}

// NewFree returns the default subscription created on a user's first
// feature call.
func NewFree(userID string, now time.Time) *Subscription {
	return &Subscription{
		Entity: types.NewEntityAt(now),
		UserID: userID,
		Tier:   plan.TierFree,
		Status: StatusActive,
		Usage:  ZeroUsage(now),
	}
}

// NewPremium returns the subscription created when a payment lands for a
// user who has never called a feature.
func NewPremium(userID string, up Upgrade) *Subscription {
	sub := NewFree(userID, up.At)
	sub.Apply(up)
	return sub
}

// Apply sets the premium fields from up. Usage counters are left untouched.
func (s *Subscription) Apply(up Upgrade) {
	at := up.At
	next := up.NextBillingDate
	payment := up.Payment

	s.Tier = plan.TierPremium
	s.Status = StatusActive
	s.PaymentDetails = &payment
	s.UpgradedAt = &at
	s.PremiumSince = &at
	s.NextBillingDate = &next
	s.Touch(at)
}

// Counter returns the counter for key, or nil when the subscription has none.
func (s *Subscription) Counter(key string) *UsageCounter {
	if s.Usage == nil {
		return nil
	}
	return s.Usage[key]
}

// Clone returns a deep copy, so stores can hand out documents without
// sharing mutable state.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.Usage != nil {
		c.Usage = make(map[string]*UsageCounter, len(s.Usage))
		for k, v := range s.Usage {
			u := *v
			if v.LastUsed != nil {
				t := *v.LastUsed
				u.LastUsed = &t
			}
			c.Usage[k] = &u
		}
	}
	if s.PaymentDetails != nil {
		p := *s.PaymentDetails
		c.PaymentDetails = &p
	}
	c.UpgradedAt = cloneTime(s.UpgradedAt)
	c.PremiumSince = cloneTime(s.PremiumSince)
	c.NextBillingDate = cloneTime(s.NextBillingDate)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
