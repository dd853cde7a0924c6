package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/plan"
	"github.com/xraph/learngate/store"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

var _ store.Store = (*Store)(nil)

// Store is an in-process Store. A single mutex makes every method atomic,
// which is stronger than the guarantees the other backends give for the
// window-reset read-modify-write.
type Store struct {
	mu sync.RWMutex

	// Subscription storage, keyed by user id
	subscriptions map[string]*subscription.Subscription

	// Transaction storage, keyed by transaction id
	transactions map[string]*transaction.Transaction
	// Secondary index: checkout request id -> transaction id
	byCheckout map[string]string

	closed bool
}

func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subscription.Subscription),
		transactions:  make(map[string]*transaction.Transaction),
		byCheckout:    make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Subscription Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(_ context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[userID]; ok {
		return sub.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
}

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.UserID]; exists {
		return learngate.ErrSubscriptionExists
	}
	s.subscriptions[sub.UserID] = sub.Clone()
	return nil
}

func (s *Store) ResetUsage(_ context.Context, userID, feature string, period plan.Period, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
	}
	if sub.Usage == nil {
		sub.Usage = make(map[string]*subscription.UsageCounter)
	}

	at = at.UTC()
	counter, ok := sub.Usage[feature]
	if !ok {
		counter = &subscription.UsageCounter{}
		sub.Usage[feature] = counter
	}
	counter.Count = 0
	counter.LastReset = at
	counter.ResetPeriod = period
	sub.Touch(at)
	return nil
}

func (s *Store) IncrementUsage(_ context.Context, userID, feature string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
	}
	if sub.Usage == nil {
		sub.Usage = make(map[string]*subscription.UsageCounter)
	}

	at = at.UTC()
	counter, ok := sub.Usage[feature]
	if !ok {
		counter = &subscription.UsageCounter{}
		sub.Usage[feature] = counter
	}
	counter.Count++
	counter.LastUsed = &at
	sub.Touch(at)
	return nil
}

func (s *Store) UpgradeToPremium(_ context.Context, userID string, up subscription.Upgrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		s.subscriptions[userID] = subscription.NewPremium(userID, up)
		return nil
	}
	sub.Apply(up)
	return nil
}

// ──────────────────────────────────────────────────
// Transaction Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateTransaction(_ context.Context, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.ID.String()
	if _, exists := s.transactions[key]; exists {
		return learngate.ErrTransactionExists
	}
	c := *t
	s.transactions[key] = &c
	if t.CheckoutRequestID != "" {
		s.byCheckout[t.CheckoutRequestID] = key
	}
	return nil
}

func (s *Store) GetTransaction(_ context.Context, txID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.transactions[txID.String()]; ok {
		c := *t
		return &c, nil
	}
	return nil, fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
}

func (s *Store) FindByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if checkoutRequestID != "" {
		if key, ok := s.byCheckout[checkoutRequestID]; ok {
			c := *s.transactions[key]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: checkout %s", learngate.ErrTransactionNotFound, checkoutRequestID)
}

func (s *Store) SetCorrelation(_ context.Context, txID id.TransactionID, c transaction.Correlation, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := txID.String()
	t, ok := s.transactions[key]
	if !ok {
		return fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
	}
	if t.CheckoutRequestID != "" {
		delete(s.byCheckout, t.CheckoutRequestID)
	}
	t.CheckoutRequestID = c.CheckoutRequestID
	t.MerchantRequestID = c.MerchantRequestID
	t.ResponseCode = c.ResponseCode
	t.Touch(at)
	if c.CheckoutRequestID != "" {
		s.byCheckout[c.CheckoutRequestID] = key
	}
	return nil
}

func (s *Store) Resolve(_ context.Context, txID id.TransactionID, r transaction.Resolution, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[txID.String()]
	if !ok {
		return fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
	}
	if t.Status != transaction.StatusPending {
		return fmt.Errorf("%w: %s is %s", learngate.ErrTransactionSettled, txID, t.Status)
	}
	r.Apply(t, at)
	return nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return learngate.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
