package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the learngate store.
var Migrations = migrate.NewGroup("learngate")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_learngate_subscriptions",
			Version: "20260501000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS learngate_subscriptions (
    user_id           TEXT PRIMARY KEY,
    tier              TEXT NOT NULL DEFAULT 'free',
    status            TEXT NOT NULL DEFAULT 'active',
    payment_details   JSONB,
    upgraded_at       TIMESTAMPTZ,
    premium_since     TIMESTAMPTZ,
    next_billing_date TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_learngate_subs_tier ON learngate_subscriptions (tier, status);
CREATE INDEX IF NOT EXISTS idx_learngate_subs_billing ON learngate_subscriptions (next_billing_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS learngate_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_learngate_usage_counters",
			Version: "20260501000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS learngate_usage_counters (
    user_id      TEXT NOT NULL REFERENCES learngate_subscriptions (user_id) ON DELETE CASCADE,
    feature      TEXT NOT NULL,
    count        BIGINT NOT NULL DEFAULT 0,
    last_reset   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    reset_period TEXT NOT NULL DEFAULT '',
    last_used    TIMESTAMPTZ,
    PRIMARY KEY (user_id, feature)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS learngate_usage_counters`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_learngate_transactions",
			Version: "20260501000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS learngate_transactions (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL DEFAULT '',
    phone_number         TEXT NOT NULL DEFAULT '',
    amount               BIGINT NOT NULL DEFAULT 0,
    subscription_tier    TEXT NOT NULL DEFAULT 'premium',
    provider             TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'pending',
    checkout_request_id  TEXT NOT NULL DEFAULT '',
    merchant_request_id  TEXT NOT NULL DEFAULT '',
    response_code        TEXT NOT NULL DEFAULT '',
    mpesa_receipt_number TEXT NOT NULL DEFAULT '',
    transaction_date     TEXT NOT NULL DEFAULT '',
    paid_amount          BIGINT NOT NULL DEFAULT 0,
    error                TEXT NOT NULL DEFAULT '',
    result_code          TEXT NOT NULL DEFAULT '',
    result_desc          TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_learngate_txn_checkout ON learngate_transactions (checkout_request_id) WHERE checkout_request_id != '';
CREATE INDEX IF NOT EXISTS idx_learngate_txn_user ON learngate_transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_learngate_txn_status ON learngate_transactions (status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS learngate_transactions`)
				return err
			},
		},
	)
}
