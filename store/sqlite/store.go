package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/plan"
	lgstore "github.com/xraph/learngate/store"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

// compile-time interface check
var _ lgstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: learngate/sqlite: %w", learngate.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
		}
		return nil, fmt.Errorf("learngate/sqlite: get subscription: %w", err)
	}

	var counters []usageCounterModel
	err = s.sdb.NewSelect(&counters).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("learngate/sqlite: get usage counters: %w", err)
	}

	return fromSubscriptionModel(m, counters)
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.sdb.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: create subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return learngate.ErrSubscriptionExists
	}

	return s.insertCounters(ctx, sub.UserID, sub.Usage)
}

func (s *Store) insertCounters(ctx context.Context, userID string, usage map[string]*subscription.UsageCounter) error {
	counters := toUsageCounterModels(userID, usage)
	if len(counters) == 0 {
		return nil
	}
	_, err := s.sdb.NewInsert(&counters).
		OnConflict("(user_id, feature) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: insert usage counters: %w", err)
	}
	return nil
}

func (s *Store) ResetUsage(ctx context.Context, userID, feature string, period plan.Period, at time.Time) error {
	at = at.UTC()
	if err := s.touchSubscription(ctx, userID, at); err != nil {
		return err
	}

	c := usageCounterModel{
		UserID:      userID,
		Feature:     feature,
		Count:       0,
		LastReset:   at,
		ResetPeriod: string(period),
	}
	_, err := s.sdb.NewInsert(&c).
		OnConflict("(user_id, feature) DO UPDATE").
		Set("count = 0").
		Set("last_reset = EXCLUDED.last_reset").
		Set("reset_period = EXCLUDED.reset_period").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: reset usage: %w", err)
	}
	return nil
}

func (s *Store) IncrementUsage(ctx context.Context, userID, feature string, at time.Time) error {
	at = at.UTC()
	if err := s.touchSubscription(ctx, userID, at); err != nil {
		return err
	}

	var period plan.Period
	if f, ok := plan.Lookup(feature); ok {
		period = f.Period
	}
	c := usageCounterModel{
		UserID:      userID,
		Feature:     feature,
		Count:       1,
		LastReset:   at,
		ResetPeriod: string(period),
		LastUsed:    &at,
	}
	_, err := s.sdb.NewInsert(&c).
		OnConflict("(user_id, feature) DO UPDATE").
		Set("count = learngate_usage_counters.count + 1").
		Set("last_used = EXCLUDED.last_used").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: increment usage: %w", err)
	}
	return nil
}

func (s *Store) UpgradeToPremium(ctx context.Context, userID string, up subscription.Upgrade) error {
	sub := subscription.NewPremium(userID, up)

	_, err := s.sdb.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(user_id) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("status = EXCLUDED.status").
		Set("payment_details = EXCLUDED.payment_details").
		Set("upgraded_at = EXCLUDED.upgraded_at").
		Set("premium_since = EXCLUDED.premium_since").
		Set("next_billing_date = EXCLUDED.next_billing_date").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: upgrade subscription: %w", err)
	}

	return s.insertCounters(ctx, userID, sub.Usage)
}

func (s *Store) touchSubscription(ctx context.Context, userID string, at time.Time) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("updated_at = ?", at).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: touch subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	res, err := s.sdb.NewInsert(toTransactionModel(t)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: create transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return learngate.ErrTransactionExists
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Transaction, error) {
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", txID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
		}
		return nil, fmt.Errorf("learngate/sqlite: get transaction: %w", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	if checkoutRequestID == "" {
		return nil, fmt.Errorf("%w: empty checkout request id", learngate.ErrTransactionNotFound)
	}
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("checkout_request_id = ?", checkoutRequestID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: checkout %s", learngate.ErrTransactionNotFound, checkoutRequestID)
		}
		return nil, fmt.Errorf("learngate/sqlite: find transaction: %w", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) SetCorrelation(ctx context.Context, txID id.TransactionID, c transaction.Correlation, at time.Time) error {
	res, err := s.sdb.NewUpdate((*transactionModel)(nil)).
		Set("checkout_request_id = ?", c.CheckoutRequestID).
		Set("merchant_request_id = ?", c.MerchantRequestID).
		Set("response_code = ?", c.ResponseCode).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", txID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: set correlation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
	}
	return nil
}

// Resolve applies r only while the stored status is pending.
func (s *Store) Resolve(ctx context.Context, txID id.TransactionID, r transaction.Resolution, at time.Time) error {
	q := s.sdb.NewUpdate((*transactionModel)(nil))
	for _, col := range resolutionColumns(r, at) {
		q = q.Set(col.name+" = ?", col.value)
	}
	q = q.Where("id = ?", txID.String()).
		Where("status = ?", string(transaction.StatusPending))

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/sqlite: resolve transaction: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	current, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", learngate.ErrTransactionSettled, txID, current.Status)
}

// ==================== Helpers ====================

type column struct {
	name  string
	value any
}

func resolutionColumns(r transaction.Resolution, at time.Time) []column {
	cols := []column{
		{"status", string(r.Status)},
		{"updated_at", at.UTC()},
	}
	if r.Receipt != "" {
		cols = append(cols, column{"mpesa_receipt_number", r.Receipt})
	}
	if r.TransactionDate != "" {
		cols = append(cols, column{"transaction_date", r.TransactionDate})
	}
	if r.PaidAmount != 0 {
		cols = append(cols, column{"paid_amount", r.PaidAmount})
	}
	if r.Error != "" {
		cols = append(cols, column{"error", r.Error})
	}
	if r.ResultCode != "" {
		cols = append(cols, column{"result_code", r.ResultCode})
	}
	if r.ResultDesc != "" {
		cols = append(cols, column{"result_desc", r.ResultDesc})
	}
	return cols
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
