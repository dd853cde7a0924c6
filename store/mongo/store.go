package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/id"
	"github.com/xraph/learngate/plan"
	lgstore "github.com/xraph/learngate/store"
	"github.com/xraph/learngate/subscription"
	"github.com/xraph/learngate/transaction"
)

// Collection name constants.
const (
	colSubscriptions = "learngate_subscriptions"
	colTransactions  = "learngate_transactions"
)

// compile-time interface check
var _ lgstore.Store = (*Store)(nil)

// Store implements store.Store on MongoDB. Subscriptions are one document
// per user keyed by user id, with usage counters embedded so increments are
// single-document atomic updates.
type Store struct {
	db     *grove.DB
	client *mongo.Client

	collection func(name string) *mongo.Collection
}

// New creates a new MongoDB store backed by a Grove database.
func New(db *grove.DB) *Store {
	mdb := mongodriver.Unwrap(db)
	return &Store{
		db: db,
		collection: func(name string) *mongo.Collection {
			return mdb.Collection(name)
		},
	}
}

// NewFromClient creates a store directly on a mongo-driver client, using the
// named database.
func NewFromClient(client *mongo.Client, database string) *Store {
	mdb := client.Database(database)
	return &Store{
		client: client,
		collection: func(name string) *mongo.Collection {
			return mdb.Collection(name)
		},
	}
}

// DB returns the underlying grove database, or nil for a client-backed store.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all learngate collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: learngate/mongo: %s indexes: %w", learngate.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.db != nil {
		return s.db.Ping(ctx)
	}
	return s.client.Ping(ctx, nil)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return s.client.Disconnect(context.Background())
}

// ==================== Subscription Store ====================

func (s *Store) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.collection(colSubscriptions).
		FindOne(ctx, bson.M{"_id": userID}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
		}
		return nil, fmt.Errorf("learngate/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m), nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.collection(colSubscriptions).InsertOne(ctx, toSubscriptionModel(sub))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return learngate.ErrSubscriptionExists
		}
		return fmt.Errorf("learngate/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) ResetUsage(ctx context.Context, userID, feature string, period plan.Period, at time.Time) error {
	at = at.UTC()
	prefix := "usage." + feature + "."

	res, err := s.collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{
			prefix + "count":        int64(0),
			prefix + "last_reset":   at,
			prefix + "reset_period": string(period),
			"updated_at":            at,
		}},
	)
	if err != nil {
		return fmt.Errorf("learngate/mongo: reset usage: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
	}
	return nil
}

func (s *Store) IncrementUsage(ctx context.Context, userID, feature string, at time.Time) error {
	at = at.UTC()
	prefix := "usage." + feature + "."

	res, err := s.collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{prefix + "count": int64(1)},
			"$set": bson.M{
				prefix + "last_used": at,
				"updated_at":         at,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("learngate/mongo: increment usage: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", learngate.ErrSubscriptionNotFound, userID)
	}
	return nil
}

// UpgradeToPremium upserts the premium fields. A document created by the
// upsert gets zeroed counters; an existing document keeps its counters.
func (s *Store) UpgradeToPremium(ctx context.Context, userID string, up subscription.Upgrade) error {
	at := up.At.UTC()

	usage := make(map[string]usageCounterModel, len(plan.Features))
	for k, c := range subscription.ZeroUsage(at) {
		usage[k] = toUsageCounterModel(c)
	}

	_, err := s.collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$set": bson.M{
				"tier":              string(plan.TierPremium),
				"status":            string(subscription.StatusActive),
				"payment_details":   toPaymentDetailsModel(&up.Payment),
				"upgraded_at":       at,
				"premium_since":     at,
				"next_billing_date": up.NextBillingDate.UTC(),
				"updated_at":        at,
			},
			"$setOnInsert": bson.M{
				"user_id":    userID,
				"usage":      usage,
				"created_at": at,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("learngate/mongo: upgrade subscription: %w", err)
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) CreateTransaction(ctx context.Context, t *transaction.Transaction) error {
	_, err := s.collection(colTransactions).InsertOne(ctx, toTransactionModel(t))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return learngate.ErrTransactionExists
		}
		return fmt.Errorf("learngate/mongo: create transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txID id.TransactionID) (*transaction.Transaction, error) {
	return s.findTransaction(ctx, bson.M{"_id": txID.String()}, txID.String())
}

func (s *Store) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	if checkoutRequestID == "" {
		return nil, fmt.Errorf("%w: empty checkout request id", learngate.ErrTransactionNotFound)
	}
	return s.findTransaction(ctx, bson.M{"checkout_request_id": checkoutRequestID}, "checkout "+checkoutRequestID)
}

func (s *Store) findTransaction(ctx context.Context, filter bson.M, label string) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.collection(colTransactions).FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, label)
		}
		return nil, fmt.Errorf("learngate/mongo: get transaction: %w", err)
	}
	t, err := fromTransactionModel(&m)
	if err != nil {
		return nil, fmt.Errorf("learngate/mongo: %w", err)
	}
	return t, nil
}

func (s *Store) SetCorrelation(ctx context.Context, txID id.TransactionID, c transaction.Correlation, at time.Time) error {
	res, err := s.collection(colTransactions).UpdateOne(ctx,
		bson.M{"_id": txID.String()},
		bson.M{"$set": bson.M{
			"checkout_request_id": c.CheckoutRequestID,
			"merchant_request_id": c.MerchantRequestID,
			"response_code":       c.ResponseCode,
			"updated_at":          at.UTC(),
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: checkout %s already correlated", learngate.ErrTransactionExists, c.CheckoutRequestID)
		}
		return fmt.Errorf("learngate/mongo: set correlation: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", learngate.ErrTransactionNotFound, txID)
	}
	return nil
}

// Resolve applies r only while the stored status is pending. The filter on
// status makes the transition a single conditional write.
func (s *Store) Resolve(ctx context.Context, txID id.TransactionID, r transaction.Resolution, at time.Time) error {
	res, err := s.collection(colTransactions).UpdateOne(ctx,
		bson.M{"_id": txID.String(), "status": string(transaction.StatusPending)},
		bson.M{"$set": resolutionSet(r, at)},
	)
	if err != nil {
		return fmt.Errorf("learngate/mongo: resolve transaction: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	current, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", learngate.ErrTransactionSettled, txID, current.Status)
}

// ==================== Helpers ====================

// resolutionSet mirrors transaction.Resolution.Apply: empty fields are not
// written.
func resolutionSet(r transaction.Resolution, at time.Time) bson.M {
	set := bson.M{
		"status":     string(r.Status),
		"updated_at": at.UTC(),
	}
	if r.Receipt != "" {
		set["mpesa_receipt_number"] = r.Receipt
	}
	if r.TransactionDate != "" {
		set["transaction_date"] = r.TransactionDate
	}
	if r.PaidAmount != 0 {
		set["paid_amount"] = r.PaidAmount
	}
	if r.Error != "" {
		set["error"] = r.Error
	}
	if r.ResultCode != "" {
		set["result_code"] = r.ResultCode
	}
	if r.ResultDesc != "" {
		set["result_desc"] = r.ResultDesc
	}
	return set
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all learngate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "tier", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "next_billing_date", Value: 1}}},
		},
		colTransactions: {
			{
				Keys:    bson.D{{Key: "checkout_request_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
