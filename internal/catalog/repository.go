package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/platform/db"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// Repository persists catalog entries in PostgreSQL. Rows are soft deleted
// so the per-tenant id high-water mark survives deletions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectEntries = `SELECT id, name, unit_price::text, package_sizes, package_variants, kind, pricing_mode, group_size, group_price::text
FROM catalog_entries WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY id`

const insertEntry = `INSERT INTO catalog_entries
(tenant_id, id, name, unit_price, package_sizes, package_variants, kind, pricing_mode, group_size, group_price, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10::numeric, NOW(), NOW())`

// Load returns the live entries of a tenant and the highest id ever issued.
func (r *Repository) Load(ctx context.Context, tenantID int64) ([]Entry, int64, error) {
	rows, err := r.pool.Query(ctx, selectEntries, tenantID)
	if err != nil {
		return nil, 0, upstream("load", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, 0, upstream("scan", err)
	}
	var highWater int64
	if err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM catalog_entries WHERE tenant_id = $1`, tenantID).Scan(&highWater); err != nil {
		return nil, 0, upstream("high water", err)
	}
	return entries, highWater, nil
}

// Insert stores a new entry.
func (r *Repository) Insert(ctx context.Context, tenantID int64, e Entry) error {
	_, err := r.pool.Exec(ctx, insertEntry,
		tenantID, e.ID, e.Name, e.UnitPrice.String(), e.PackageSizes.Sizes(), e.PackageSizes.IsVariants(),
		string(e.Kind), string(e.Pricing.Mode), e.Pricing.GroupSize, nullDecimalText(e.Pricing.GroupPrice))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("catalog: id %d: %w", e.ID, shared.ErrDuplicate)
		}
		return upstream("insert", err)
	}
	return nil
}

// InsertBatch stores several entries atomically.
func (r *Repository) InsertBatch(ctx context.Context, tenantID int64, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertEntry,
			tenantID, e.ID, e.Name, e.UnitPrice.String(), e.PackageSizes.Sizes(), e.PackageSizes.IsVariants(),
			string(e.Kind), string(e.Pricing.Mode), e.Pricing.GroupSize, nullDecimalText(e.Pricing.GroupPrice))
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return upstream("insert batch", err)
	}
	return nil
}

// Update overwrites an existing entry.
func (r *Repository) Update(ctx context.Context, tenantID int64, e Entry) error {
	tag, err := r.pool.Exec(ctx, `UPDATE catalog_entries SET name = $3, unit_price = $4::numeric, package_sizes = $5,
package_variants = $6, kind = $7, pricing_mode = $8, group_size = $9, group_price = $10::numeric, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, e.ID, e.Name, e.UnitPrice.String(), e.PackageSizes.Sizes(), e.PackageSizes.IsVariants(),
		string(e.Kind), string(e.Pricing.Mode), e.Pricing.GroupSize, nullDecimalText(e.Pricing.GroupPrice))
	if err != nil {
		return upstream("update", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, e.ID)
	}
	return nil
}

// Delete soft deletes an entry.
func (r *Repository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE catalog_entries SET deleted_at = NOW() WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
	if err != nil {
		return upstream("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrEntryNotFound, id)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e          Entry
		unitPrice  string
		sizes      []int64
		variants   bool
		kind       string
		mode       string
		groupPrice *string
	)
	if err := row.Scan(&e.ID, &e.Name, &unitPrice, &sizes, &variants, &kind, &mode, &e.Pricing.GroupSize, &groupPrice); err != nil {
		return Entry{}, err
	}
	price, err := decimal.NewFromString(unitPrice)
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: unit price %q: %w", unitPrice, err)
	}
	e.UnitPrice = price
	if variants {
		e.PackageSizes = Variants(sizes...)
	} else if len(sizes) > 0 {
		e.PackageSizes = Single(sizes[0])
	}
	e.Kind = Kind(kind)
	e.Pricing.Mode = PricingMode(mode)
	if groupPrice != nil {
		gp, err := decimal.NewFromString(*groupPrice)
		if err != nil {
			return Entry{}, fmt.Errorf("catalog: group price %q: %w", *groupPrice, err)
		}
		e.Pricing.GroupPrice = decimal.NewNullDecimal(gp)
	}
	return e, nil
}

func nullDecimalText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: catalog: %s: %v", shared.ErrUpstream, op, err)
}
