package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM. Usage
// counters live in their own table keyed by (user_id, feature) so an
// increment is a single-row upsert.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("learngate/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: learngate/postgres: %w", learngate.ErrMigrationFailed, err)
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
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
		}
		return nil, fmt.Errorf("learngate/postgres: get subscription: %w", err)
	}

	var counters []usageCounterModel
	err = s.pg.NewSelect(&counters).
		Where("user_id = $1", userID).
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, fmt.Errorf("learngate/postgres: get usage counters: %w", err)
	}

	return fromSubscriptionModel(m, counters)
}

// CreateSubscription inserts the subscription row if absent. Counter rows
// are inserted afterwards; a missing counter reads as an elapsed window, so
// a crash between the two inserts is repaired by the next admission.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.pg.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: create subscription: %w", err)
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
	_, err := s.pg.NewInsert(&counters).
		OnConflict("(user_id, feature) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: insert usage counters: %w", err)
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
	_, err := s.pg.NewInsert(&c).
		OnConflict("(user_id, feature) DO UPDATE").
		Set("count = 0").
		Set("last_reset = EXCLUDED.last_reset").
		Set("reset_period = EXCLUDED.reset_period").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: reset usage: %w", err)
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
	_, err := s.pg.NewInsert(&c).
		OnConflict("(user_id, feature) DO UPDATE").
		Set("count = learngate_usage_counters.count + 1").
		Set("last_used = EXCLUDED.last_used").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: increment usage: %w", err)
	}
	return nil
}

// UpgradeToPremium upserts the premium fields. Counter rows are inserted
// only where missing, so an existing user keeps its counts.
func (s *Store) UpgradeToPremium(ctx context.Context, userID string, up subscription.Upgrade) error {
	sub := subscription.NewPremium(userID, up)

	_, err := s.pg.NewInsert(toSubscriptionModel(sub)).
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
		return fmt.Errorf("learngate/postgres: upgrade subscription: %w", err)
	}

	return s.insertCounters(ctx, userID, sub.Usage)
}

// touchSubscription bumps updated_at and reports ErrSubscriptionNotFound
// when no row exists.
func (s *Store) touchSubscription(ctx context.Context, userID string, at time.Time) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("updated_at = $1", at).
		Where("user_id = $2", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: touch subscription: %w", err)
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
	res, err := s.pg.NewInsert(toTransactionModel(t)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: create transaction: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", txID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
		}
		return nil, fmt.Errorf("learngate/postgres: get transaction: %w", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	if checkoutRequestID == "" {
		return nil, fmt.Errorf("%w: empty checkout request id", learngate.ErrTransactionNotFound)
	}
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("checkout_request_id = $1", checkoutRequestID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: checkout %s", learngate.ErrTransactionNotFound, checkoutRequestID)
		}
		return nil, fmt.Errorf("learngate/postgres: find transaction: %w", err)
	}
	return fromTransactionModel(m)
}

func (s *Store) SetCorrelation(ctx context.Context, txID id.TransactionID, c transaction.Correlation, at time.Time) error {
	res, err := s.pg.NewUpdate((*transactionModel)(nil)).
		Set("checkout_request_id = $1", c.CheckoutRequestID).
		Set("merchant_request_id = $2", c.MerchantRequestID).
		Set("response_code = $3", c.ResponseCode).
		Set("updated_at = $4", at.UTC()).
		Where("id = $5", txID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: set correlation: %w", err)
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
	q := s.pg.NewUpdate((*transactionModel)(nil))

	argIdx := 0
	for _, col := range resolutionColumns(r, at) {
		argIdx++
		q = q.Set(fmt.Sprintf("%s = $%d", col.name, argIdx), col.value)
	}
	q = q.Where(fmt.Sprintf("id = $%d", argIdx+1), txID.String()).
		Where(fmt.Sprintf("status = $%d", argIdx+2), string(transaction.StatusPending))

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("learngate/postgres: resolve transaction: %w", err)
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

// resolutionColumns mirrors transaction.Resolution.Apply: empty fields are
// not written.
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
