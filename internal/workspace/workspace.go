// Package workspace holds the per-tenant session object: the catalog, the
// expense ledger and the ledger engine of one tenant, opened at login and
// torn down at logout. Every mutation is authorised against the caller's
// identity before any state changes, and persisted before it becomes
// visible in memory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/expense"
	"github.com/odyssey-erp/barledger/internal/identity"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// ErrUnsavedChanges occurs when switching dates would drop unsaved edits.
var ErrUnsavedChanges = fmt.Errorf("%w: workspace: unsaved changes for the current date", shared.ErrValidation)

// Workspace is one tenant's editing session. It is safe for concurrent use;
// callers are serialised on an internal mutex.
type Workspace struct {
	mu       sync.Mutex
	tenantID int64
	deps     Deps
	logger   *slog.Logger

	catalog  *catalog.Catalog
	expenses *expense.Ledger
	engine   *ledger.Engine
}

// Open loads a tenant's catalog, then the expenses and working lines of date.
func Open(ctx context.Context, deps Deps, tenantID int64, date time.Time) (*Workspace, error) {
	deps = deps.withDefaults()
	type loaded struct {
		entries   []catalog.Entry
		highWater int64
	}
	cat, err := shared.RetryRead(ctx, func(ctx context.Context) (loaded, error) {
		entries, hw, err := deps.Catalog.Load(ctx, tenantID)
		return loaded{entries: entries, highWater: hw}, err
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: load catalog: %w", err)
	}
	w := &Workspace{
		tenantID: tenantID,
		deps:     deps,
		logger:   deps.Logger.With(slog.Int64("tenant_id", tenantID)),
		catalog:  catalog.New(cat.entries, cat.highWater),
	}
	if err := w.loadDate(ctx, date); err != nil {
		return nil, err
	}
	w.logger.Info("workspace opened", slog.Int("catalog_entries", w.catalog.Len()), slog.Time("date", w.engine.Date()))
	return w, nil
}

func (w *Workspace) loadDate(ctx context.Context, date time.Time) error {
	day := ledger.DateOnly(date)
	entries, err := shared.RetryRead(ctx, func(ctx context.Context) ([]expense.Entry, error) {
		return w.deps.Expenses.ListByDate(ctx, w.tenantID, day)
	})
	if err != nil {
		return fmt.Errorf("workspace: load expenses: %w", err)
	}
	ws, err := shared.RetryRead(ctx, func(ctx context.Context) (ledger.WorkingSet, error) {
		return w.deps.Ledger.LoadWorking(ctx, w.tenantID, day)
	})
	if err != nil {
		return fmt.Errorf("workspace: load working set: %w", err)
	}
	expenses := expense.NewLedger(entries)
	engine := ledger.NewEngine(w.catalog, expenses, day, w.logger)
	engine.Load(ws)
	w.expenses = expenses
	w.engine = engine
	return nil
}

// TenantID returns the tenant the workspace belongs to.
func (w *Workspace) TenantID() int64 { return w.tenantID }

func (w *Workspace) authorize(actor identity.Identity) error {
	if actor.TenantID != w.tenantID {
		return fmt.Errorf("%w: user %d does not belong to tenant %d", shared.ErrUnauthorized, actor.UserID, w.tenantID)
	}
	return actor.Authorize(w.deps.Clock())
}

// authorizeAdmin guards catalog edits and history deletion.
func (w *Workspace) authorizeAdmin(actor identity.Identity) error {
	if err := w.authorize(actor); err != nil {
		return err
	}
	return actor.AuthorizeAdmin()
}

func (w *Workspace) audit(ctx context.Context, actor identity.Identity, action, entity, entityID string, meta map[string]any) {
	if w.deps.Audit == nil {
		return
	}
	err := w.deps.Audit.Record(ctx, shared.AuditLog{
		TenantID: w.tenantID,
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       w.deps.Clock(),
	})
	if err != nil {
		w.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// Snapshot returns the current derived snapshot.
func (w *Workspace) Snapshot() ledger.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Snapshot()
}

// Products lists the catalog in id order.
func (w *Workspace) Products() []catalog.Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.catalog.List()
}

// MatchProduct exposes the fuzzy name match used by ingestion.
func (w *Workspace) MatchProduct(query string) (catalog.Match, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.catalog.FindByFuzzyName(query)
}

// AddProduct validates, persists and then adds a catalog entry. Only
// administrative roles may edit the catalog.
func (w *Workspace) AddProduct(ctx context.Context, actor identity.Identity, candidate catalog.Entry) (catalog.Entry, error) {
	if err := w.authorizeAdmin(actor); err != nil {
		return catalog.Entry{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.catalog.Prepare(candidate)
	if err != nil {
		return catalog.Entry{}, err
	}
	if err := w.deps.Catalog.Insert(ctx, w.tenantID, entry); err != nil {
		return catalog.Entry{}, err
	}
	w.catalog.Put(entry)
	w.engine.RecomputeAll()
	w.audit(ctx, actor, "catalog.add", "catalog_entry", strconv.FormatInt(entry.ID, 10), map[string]any{"name": entry.Name})
	return entry, nil
}

// UpdateProduct patches a catalog entry; ledger lines are revalued.
func (w *Workspace) UpdateProduct(ctx context.Context, actor identity.Identity, id int64, patch catalog.Patch) (catalog.Entry, error) {
	if err := w.authorizeAdmin(actor); err != nil {
		return catalog.Entry{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.catalog.ApplyPatch(id, patch)
	if err != nil {
		return catalog.Entry{}, err
	}
	if err := w.deps.Catalog.Update(ctx, w.tenantID, entry); err != nil {
		return catalog.Entry{}, err
	}
	w.catalog.Put(entry)
	w.engine.Invalidate()
	w.audit(ctx, actor, "catalog.update", "catalog_entry", strconv.FormatInt(id, 10), map[string]any{"name": entry.Name})
	return entry, nil
}

// RemoveProduct deletes a catalog entry. Lines referencing it become orphans.
func (w *Workspace) RemoveProduct(ctx context.Context, actor identity.Identity, id int64) error {
	if err := w.authorizeAdmin(actor); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.catalog.Get(id); !ok {
		return fmt.Errorf("%w: id %d", catalog.ErrEntryNotFound, id)
	}
	if err := w.deps.Catalog.Delete(ctx, w.tenantID, id); err != nil {
		return err
	}
	if err := w.catalog.Remove(id); err != nil {
		return err
	}
	w.engine.Invalidate()
	w.audit(ctx, actor, "catalog.remove", "catalog_entry", strconv.FormatInt(id, 10), nil)
	return nil
}

// SetStockQuantity records a counted quantity.
func (w *Workspace) SetStockQuantity(ctx context.Context, actor identity.Identity, productID, quantity int64) (ledger.Snapshot, error) {
	if err := w.authorize(actor); err != nil {
		return ledger.Snapshot{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.engine.SetStockQuantity(productID, quantity); err != nil {
		return ledger.Snapshot{}, err
	}
	return w.engine.Snapshot(), nil
}

// SetDeliveryQuantity records a delivered quantity.
func (w *Workspace) SetDeliveryQuantity(ctx context.Context, actor identity.Identity, productID, quantity, packageSize int64) (ledger.Snapshot, error) {
	if err := w.authorize(actor); err != nil {
		return ledger.Snapshot{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.engine.SetDeliveryQuantity(productID, quantity, packageSize); err != nil {
		return ledger.Snapshot{}, err
	}
	return w.engine.Snapshot(), nil
}

// CashUpdate carries the manually entered figures; nil fields are left as is.
type CashUpdate struct {
	OpeningStockValue *decimal.Decimal
	CashCollected     *decimal.Decimal
	ManagerCashOnHand *decimal.Decimal
}

// SetCash applies the manually entered figures.
func (w *Workspace) SetCash(ctx context.Context, actor identity.Identity, u CashUpdate) (ledger.Snapshot, error) {
	if err := w.authorize(actor); err != nil {
		return ledger.Snapshot{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if u.OpeningStockValue != nil {
		w.engine.SetOpeningStock(*u.OpeningStockValue)
	}
	if u.CashCollected != nil {
		w.engine.SetCashCollected(*u.CashCollected)
	}
	if u.ManagerCashOnHand != nil {
		w.engine.SetManagerCash(*u.ManagerCashOnHand)
	}
	return w.engine.Snapshot(), nil
}

// Ingest reconciles externally read quantities against the catalog. Created
// catalog entries are persisted in one batch; if that fails the catalog and
// the ledger are rolled back.
func (w *Workspace) Ingest(ctx context.Context, actor identity.Identity, results []ledger.ExternalQuantity) (ledger.IngestResult, error) {
	if err := w.authorize(actor); err != nil {
		return ledger.IngestResult{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	catalogBefore := w.catalog.Clone()
	engineBefore := w.engine.Checkpoint()
	rollback := func() {
		w.catalog.Restore(catalogBefore)
		w.engine.Restore(engineBefore)
	}

	res, err := w.engine.IngestExternalQuantities(results, w.deps.Defaults)
	if err != nil {
		rollback()
		return ledger.IngestResult{}, err
	}
	if len(res.NewEntries) > 0 {
		if err := w.deps.Catalog.InsertBatch(ctx, w.tenantID, res.NewEntries); err != nil {
			rollback()
			return ledger.IngestResult{}, err
		}
	}
	if w.deps.Observer != nil {
		w.deps.Observer.ObserveIngest(res.Created, res.Updated)
	}
	w.logger.Info("quantities ingested", slog.Int("created", res.Created), slog.Int("updated", res.Updated))
	if res.Created > 0 {
		ids := make([]int64, 0, len(res.NewEntries))
		for _, e := range res.NewEntries {
			ids = append(ids, e.ID)
		}
		w.audit(ctx, actor, "catalog.ingest", "catalog_entry", strconv.FormatInt(ids[0], 10), map[string]any{"created": ids})
	}
	return res, nil
}

// Save appends the current snapshot to the history and persists the working
// lines. Saves are serialised per tenant and never retried.
func (w *Workspace) Save(ctx context.Context, actor identity.Identity) (ledger.Record, error) {
	if err := w.authorize(actor); err != nil {
		return ledger.Record{}, err
	}
	var rec ledger.Record
	err := w.deps.Locker.WithLock(ctx, w.tenantID, func(ctx context.Context) error {
		w.mu.Lock()
		defer w.mu.Unlock()

		snap := w.engine.Snapshot()
		snap.State = ledger.StateSaved
		rec = ledger.Record{
			ID:       uuid.New(),
			TenantID: w.tenantID,
			Date:     snap.Date,
			SavedAt:  w.deps.Clock(),
			SavedBy:  actor.UserID,
			Snapshot: snap,
		}
		if err := w.deps.Ledger.Save(ctx, rec); err != nil {
			return err
		}
		w.engine.MarkSaved()
		return nil
	})
	w.observeSave(err)
	if err != nil {
		w.logger.Error("save snapshot", slog.Any("error", err))
		return ledger.Record{}, err
	}
	w.logger.Info("snapshot saved", slog.String("record_id", rec.ID.String()), slog.Time("date", rec.Date))
	w.audit(ctx, actor, "ledger.save", "ledger_snapshot", rec.ID.String(), map[string]any{
		"date":         rec.Date.Format(time.DateOnly),
		"final_result": rec.Snapshot.FinalResult.String(),
	})
	if w.deps.Notifier != nil {
		if err := w.deps.Notifier.SnapshotSaved(ctx, rec); err != nil {
			w.logger.Warn("notify snapshot saved", slog.Any("error", err))
		}
	}
	return rec, nil
}

func (w *Workspace) observeSave(err error) {
	if w.deps.Observer == nil {
		return
	}
	switch {
	case err == nil:
		w.deps.Observer.ObserveSave("saved")
	case errors.Is(err, shared.ErrLockHeld):
		w.deps.Observer.ObserveSave("locked")
	default:
		w.deps.Observer.ObserveSave("failed")
	}
}

// SwitchDate moves the workspace to another reconciliation date, loading the
// lines and expenses persisted for it. Unsaved edits block the switch unless
// discard is set.
func (w *Workspace) SwitchDate(ctx context.Context, actor identity.Identity, date time.Time, discard bool) (ledger.Snapshot, error) {
	if actor.TenantID != w.tenantID {
		return ledger.Snapshot{}, fmt.Errorf("%w: user %d does not belong to tenant %d", shared.ErrUnauthorized, actor.UserID, w.tenantID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.engine.State() == ledger.StateInProgress && !discard {
		return ledger.Snapshot{}, ErrUnsavedChanges
	}
	if err := w.loadDate(ctx, date); err != nil {
		return ledger.Snapshot{}, err
	}
	return w.engine.Snapshot(), nil
}

// History lists saved records, newest first.
func (w *Workspace) History(ctx context.Context, filter ledger.HistoryFilter) ([]ledger.Record, error) {
	return shared.RetryRead(ctx, func(ctx context.Context) ([]ledger.Record, error) {
		return w.deps.Ledger.ListHistory(ctx, w.tenantID, filter)
	})
}

// Record loads one saved record.
func (w *Workspace) Record(ctx context.Context, id uuid.UUID) (ledger.Record, error) {
	return shared.RetryRead(ctx, func(ctx context.Context) (ledger.Record, error) {
		return w.deps.Ledger.GetRecord(ctx, w.tenantID, id)
	})
}

// DeleteRecord removes a saved record from the history. Only administrative
// roles may delete. Removing the last record of a date also drops that date's
// stored lines; the open working state is left as is.
func (w *Workspace) DeleteRecord(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
	if err := w.authorizeAdmin(actor); err != nil {
		return err
	}
	if err := w.deps.Ledger.DeleteRecord(ctx, w.tenantID, id); err != nil {
		return err
	}
	w.audit(ctx, actor, "ledger.delete", "ledger_snapshot", id.String(), nil)
	return nil
}

// Expenses lists the expenses of the working date.
func (w *Workspace) Expenses() ([]expense.Entry, decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expenses.List(), w.expenses.Total()
}

// AddExpense records an expense against the working date.
func (w *Workspace) AddExpense(ctx context.Context, actor identity.Identity, motif string, amount decimal.Decimal) (expense.Entry, error) {
	if err := w.authorize(actor); err != nil {
		return expense.Entry{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.expenses.Prepare(motif, amount, w.engine.Date())
	if err != nil {
		return expense.Entry{}, err
	}
	if err := w.deps.Expenses.Insert(ctx, w.tenantID, entry); err != nil {
		return expense.Entry{}, err
	}
	w.expenses.Append(entry)
	w.engine.Invalidate()
	return entry, nil
}

// RemoveExpense deletes an expense of the working date.
func (w *Workspace) RemoveExpense(ctx context.Context, actor identity.Identity, id uuid.UUID) error {
	if err := w.authorize(actor); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.expenses.Get(id); !ok {
		return fmt.Errorf("%w: %s", expense.ErrEntryNotFound, id)
	}
	if err := w.deps.Expenses.Delete(ctx, w.tenantID, id); err != nil {
		return err
	}
	if err := w.expenses.Remove(id); err != nil {
		return err
	}
	w.engine.Invalidate()
	return nil
}
