package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Schema creates every table the service reads or writes. Each statement is
// idempotent so it can run on every start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	subscription_active BOOLEAN NOT NULL DEFAULT TRUE,
	subscription_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('admin', 'creator', 'manager', 'staff')),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS catalog_entries (
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	id BIGINT NOT NULL,
	name TEXT NOT NULL,
	unit_price NUMERIC(18,4) NOT NULL,
	package_sizes BIGINT[] NOT NULL,
	package_variants BOOLEAN NOT NULL DEFAULT FALSE,
	kind TEXT NOT NULL,
	pricing_mode TEXT NOT NULL,
	group_size BIGINT NOT NULL DEFAULT 0,
	group_price NUMERIC(18,4),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ,
	PRIMARY KEY (tenant_id, id)
)`,
	`CREATE TABLE IF NOT EXISTS stock_entries (
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	product_id BIGINT NOT NULL,
	entry_date DATE NOT NULL,
	quantity BIGINT NOT NULL CHECK (quantity >= 0),
	value NUMERIC(18,4) NOT NULL,
	PRIMARY KEY (tenant_id, entry_date, product_id)
)`,
	`CREATE TABLE IF NOT EXISTS delivery_entries (
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	product_id BIGINT NOT NULL,
	entry_date DATE NOT NULL,
	quantity BIGINT NOT NULL CHECK (quantity >= 0),
	package_size BIGINT NOT NULL,
	value NUMERIC(18,4) NOT NULL,
	PRIMARY KEY (tenant_id, entry_date, product_id)
)`,
	`CREATE TABLE IF NOT EXISTS ledger_snapshots (
	id UUID PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	entry_date DATE NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL,
	saved_by BIGINT NOT NULL,
	opening_stock_value NUMERIC(18,4) NOT NULL,
	cash_collected NUMERIC(18,4) NOT NULL,
	manager_cash_on_hand NUMERIC(18,4) NOT NULL,
	deliveries_total NUMERIC(18,4) NOT NULL,
	closing_stock_value NUMERIC(18,4) NOT NULL,
	theoretical_sales NUMERIC(18,4) NOT NULL,
	variance NUMERIC(18,4) NOT NULL,
	expenses_total NUMERIC(18,4) NOT NULL,
	net_variance NUMERIC(18,4) NOT NULL,
	final_result NUMERIC(18,4) NOT NULL,
	payload JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS ledger_snapshots_tenant_date_idx ON ledger_snapshots (tenant_id, entry_date, saved_at DESC)`,
	`CREATE TABLE IF NOT EXISTS expenses (
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	id UUID NOT NULL,
	motif TEXT NOT NULL,
	amount NUMERIC(18,4) NOT NULL,
	entry_date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, id)
)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL,
	actor_id BIGINT NOT NULL,
	action TEXT NOT NULL,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	meta JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

// EnsureSchema applies Schema in a single read-committed transaction.
func EnsureSchema(ctx context.Context, conn TxBeginner) error {
	return WithTxOptions(ctx, conn, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		for i, stmt := range Schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("platform/db: schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}
