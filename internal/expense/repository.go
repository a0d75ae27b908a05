package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByDate returns the expenses of a tenant for one day, oldest first.
func (r *Repository) ListByDate(ctx context.Context, tenantID int64, day time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, motif, amount::text, entry_date FROM expenses
WHERE tenant_id = $1 AND entry_date = $2 ORDER BY created_at, id`, tenantID, day)
	if err != nil {
		return nil, upstream("list", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e      Entry
			amount string
		)
		if err := row.Scan(&e.ID, &e.Motif, &amount, &e.Date); err != nil {
			return Entry{}, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return Entry{}, err
		}
		e.Amount = d
		return e, nil
	})
	if err != nil {
		return nil, upstream("scan", err)
	}
	return entries, nil
}

// Insert appends an expense.
func (r *Repository) Insert(ctx context.Context, tenantID int64, e Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO expenses (tenant_id, id, motif, amount, entry_date, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, NOW())`, tenantID, e.ID, e.Motif, e.Amount.String(), e.Date)
	if err != nil {
		return upstream("insert", err)
	}
	return nil
}

// Delete removes an expense.
func (r *Repository) Delete(ctx context.Context, tenantID int64, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return upstream("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: expense: %s: %v", shared.ErrUpstream, op, err)
}
