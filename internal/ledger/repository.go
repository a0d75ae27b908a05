package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/platform/db"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// Repository persists working lines and the append-only snapshot log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save appends the record and replaces the tenant's working lines for the
// record date, in one transaction.
func (r *Repository) Save(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("ledger: encode snapshot: %w", err)
	}
	s := rec.Snapshot
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_snapshots
(id, tenant_id, entry_date, saved_at, saved_by, opening_stock_value, cash_collected, manager_cash_on_hand,
 deliveries_total, closing_stock_value, theoretical_sales, variance, expenses_total, net_variance, final_result, payload)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric, $14::numeric, $15::numeric, $16)`,
			rec.ID, rec.TenantID, rec.Date, rec.SavedAt, rec.SavedBy,
			s.OpeningStockValue.String(), s.CashCollected.String(), s.ManagerCashOnHand.String(),
			s.DeliveriesTotal.String(), s.ClosingStockValue.String(), s.TheoreticalSales.String(), s.Variance.String(),
			s.ExpensesTotal.String(), s.NetVariance.String(), s.FinalResult.String(), payload); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM stock_entries WHERE tenant_id = $1 AND entry_date = $2`, rec.TenantID, rec.Date); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM delivery_entries WHERE tenant_id = $1 AND entry_date = $2`, rec.TenantID, rec.Date); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, l := range s.Stock {
			batch.Queue(`INSERT INTO stock_entries (tenant_id, product_id, entry_date, quantity, value) VALUES ($1, $2, $3, $4, $5::numeric)`,
				rec.TenantID, l.ProductID, rec.Date, l.Quantity, l.Value.String())
		}
		for _, l := range s.Deliveries {
			batch.Queue(`INSERT INTO delivery_entries (tenant_id, product_id, entry_date, quantity, package_size, value) VALUES ($1, $2, $3, $4, $5, $6::numeric)`,
				rec.TenantID, l.ProductID, rec.Date, l.Quantity, l.PackageSize, l.Value.String())
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return upstream("save", err)
	}
	return nil
}

// LoadWorking returns the persisted lines and latest cash figures for a date.
func (r *Repository) LoadWorking(ctx context.Context, tenantID int64, date time.Time) (WorkingSet, error) {
	var ws WorkingSet
	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity FROM stock_entries WHERE tenant_id = $1 AND entry_date = $2 ORDER BY product_id`, tenantID, date)
	if err != nil {
		return WorkingSet{}, upstream("load stock", err)
	}
	ws.Stock, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockLine, error) {
		var l StockLine
		err := row.Scan(&l.ProductID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return WorkingSet{}, upstream("scan stock", err)
	}

	rows, err = r.pool.Query(ctx, `SELECT product_id, quantity, package_size FROM delivery_entries WHERE tenant_id = $1 AND entry_date = $2 ORDER BY product_id`, tenantID, date)
	if err != nil {
		return WorkingSet{}, upstream("load deliveries", err)
	}
	ws.Deliveries, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeliveryLine, error) {
		var l DeliveryLine
		err := row.Scan(&l.ProductID, &l.Quantity, &l.PackageSize)
		return l, err
	})
	if err != nil {
		return WorkingSet{}, upstream("scan deliveries", err)
	}

	var opening, cash, manager string
	err = r.pool.QueryRow(ctx, `SELECT opening_stock_value::text, cash_collected::text, manager_cash_on_hand::text
FROM ledger_snapshots WHERE tenant_id = $1 AND entry_date = $2 ORDER BY saved_at DESC LIMIT 1`, tenantID, date).Scan(&opening, &cash, &manager)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		ws.Cash = CashFigures{OpeningStockValue: decimal.Zero, CashCollected: decimal.Zero, ManagerCashOnHand: decimal.Zero}
		return ws, nil
	case err != nil:
		return WorkingSet{}, upstream("load cash", err)
	}
	ws.Saved = true
	if ws.Cash.OpeningStockValue, err = decimal.NewFromString(opening); err != nil {
		return WorkingSet{}, fmt.Errorf("ledger: opening stock %q: %w", opening, err)
	}
	if ws.Cash.CashCollected, err = decimal.NewFromString(cash); err != nil {
		return WorkingSet{}, fmt.Errorf("ledger: cash collected %q: %w", cash, err)
	}
	if ws.Cash.ManagerCashOnHand, err = decimal.NewFromString(manager); err != nil {
		return WorkingSet{}, fmt.Errorf("ledger: manager cash %q: %w", manager, err)
	}
	return ws, nil
}

// ListHistory returns saved records, newest first.
func (r *Repository) ListHistory(ctx context.Context, tenantID int64, filter HistoryFilter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, entry_date, saved_at, saved_by, payload FROM ledger_snapshots
WHERE tenant_id = $1 AND ($2::date IS NULL OR entry_date >= $2) AND ($3::date IS NULL OR entry_date <= $3)
ORDER BY entry_date DESC, saved_at DESC LIMIT $4`, tenantID, from, to, limit)
	if err != nil {
		return nil, upstream("list history", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, upstream("scan history", err)
	}
	return records, nil
}

// GetRecord loads one saved record.
func (r *Repository) GetRecord(ctx context.Context, tenantID int64, id uuid.UUID) (Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, entry_date, saved_at, saved_by, payload FROM ledger_snapshots WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return Record{}, upstream("get record", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return Record{}, upstream("scan record", err)
	}
	return rec, nil
}

// DeleteRecord removes a saved record. When it was the last record of its
// date, the date's working lines are removed too and the date reloads empty.
func (r *Repository) DeleteRecord(ctx context.Context, tenantID int64, id uuid.UUID) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return deleteRecord(ctx, tx, tenantID, id)
	})
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return err
	case err != nil:
		return upstream("delete record", err)
	}
	return nil
}

func deleteRecord(ctx context.Context, tx pgx.Tx, tenantID int64, id uuid.UUID) error {
	var date time.Time
	err := tx.QueryRow(ctx, `DELETE FROM ledger_snapshots WHERE tenant_id = $1 AND id = $2 RETURNING entry_date`, tenantID, id).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return err
	}
	var remaining bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_snapshots WHERE tenant_id = $1 AND entry_date = $2)`, tenantID, date).Scan(&remaining); err != nil {
		return err
	}
	if remaining {
		return nil
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stock_entries WHERE tenant_id = $1 AND entry_date = $2`, tenantID, date); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM delivery_entries WHERE tenant_id = $1 AND entry_date = $2`, tenantID, date)
	return err
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		rec     Record
		payload []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Date, &rec.SavedAt, &rec.SavedBy, &payload); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
		return Record{}, fmt.Errorf("ledger: decode snapshot %s: %w", rec.ID, err)
	}
	return rec, nil
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: ledger: %s: %v", shared.ErrUpstream, op, err)
}
