package ledger

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/catalog"
)

// ExpenseSource supplies the expense total subtracted from the variance.
type ExpenseSource interface {
	Total() decimal.Decimal
}

type deliveryInput struct {
	quantity    int64
	packageSize int64
}

// Engine holds one tenant's working snapshot for one date and keeps every
// derived total current. Each edit recomputes the whole chain before
// returning. Not safe for concurrent use; the workspace serialises callers.
type Engine struct {
	catalog  *catalog.Catalog
	expenses ExpenseSource
	logger   *slog.Logger

	date       time.Time
	state      State
	stock      map[int64]int64
	deliveries map[int64]deliveryInput
	cash       CashFigures
	current    Snapshot
}

// NewEngine builds an empty engine for the given date.
func NewEngine(cat *catalog.Catalog, expenses ExpenseSource, date time.Time, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		catalog:    cat,
		expenses:   expenses,
		logger:     logger,
		date:       DateOnly(date),
		state:      StateEmpty,
		stock:      make(map[int64]int64),
		deliveries: make(map[int64]deliveryInput),
		cash:       CashFigures{OpeningStockValue: decimal.Zero, CashCollected: decimal.Zero, ManagerCashOnHand: decimal.Zero},
	}
	e.RecomputeAll()
	return e
}

// Load replaces the working lines with a persisted working set.
func (e *Engine) Load(ws WorkingSet) {
	e.stock = make(map[int64]int64, len(ws.Stock))
	for _, l := range ws.Stock {
		e.stock[l.ProductID] = l.Quantity
	}
	e.deliveries = make(map[int64]deliveryInput, len(ws.Deliveries))
	for _, l := range ws.Deliveries {
		e.deliveries[l.ProductID] = deliveryInput{quantity: l.Quantity, packageSize: l.PackageSize}
	}
	e.cash = ws.Cash
	switch {
	case ws.Saved:
		e.state = StateSaved
	case len(ws.Stock) > 0 || len(ws.Deliveries) > 0:
		e.state = StateInProgress
	default:
		e.state = StateEmpty
	}
	e.RecomputeAll()
}

// Date returns the reconciliation date.
func (e *Engine) Date() time.Time { return e.date }

// State returns the lifecycle state of the working snapshot.
func (e *Engine) State() State { return e.state }

// Snapshot returns the last computed snapshot.
func (e *Engine) Snapshot() Snapshot { return e.current }

// SetStockQuantity records a counted quantity for a product.
func (e *Engine) SetStockQuantity(productID, quantity int64) error {
	if _, ok := e.catalog.Get(productID); !ok {
		e.logger.Warn("stock quantity for unknown product", slog.Int64("product_id", productID))
		return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	e.stock[productID] = quantity
	e.touch()
	return nil
}

// SetDeliveryQuantity records a delivered quantity. A zero packageSize picks
// the product's default size; any other size must be offered by the product.
func (e *Engine) SetDeliveryQuantity(productID, quantity, packageSize int64) error {
	entry, ok := e.catalog.Get(productID)
	if !ok {
		e.logger.Warn("delivery quantity for unknown product", slog.Int64("product_id", productID))
		return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	size := int64(0)
	if entry.Kind != catalog.KindUnit {
		resolved, err := catalog.ResolvePackageSize(entry, packageSize)
		if err != nil {
			return err
		}
		size = resolved
	}
	e.deliveries[productID] = deliveryInput{quantity: quantity, packageSize: size}
	e.touch()
	return nil
}

// SetOpeningStock sets the value carried over from the previous period.
func (e *Engine) SetOpeningStock(amount decimal.Decimal) {
	e.cash.OpeningStockValue = amount
	e.touch()
}

// SetCashCollected sets the cash counted in the till.
func (e *Engine) SetCashCollected(amount decimal.Decimal) {
	e.cash.CashCollected = amount
	e.touch()
}

// SetManagerCash sets the cash the manager holds.
func (e *Engine) SetManagerCash(amount decimal.Decimal) {
	e.cash.ManagerCashOnHand = amount
	e.touch()
}

// Invalidate recomputes after a collaborator such as the expense ledger
// changed, moving a saved snapshot back to in progress.
func (e *Engine) Invalidate() {
	e.touch()
}

// MarkSaved records that the current snapshot was persisted. Later edits
// move the state back to in progress.
func (e *Engine) MarkSaved() {
	e.state = StateSaved
	e.current.State = StateSaved
}

func (e *Engine) touch() {
	e.state = StateInProgress
	e.RecomputeAll()
}

// RecomputeAll derives every total from the current inputs. It depends only
// on the inputs, so repeated calls without edits return identical snapshots.
// Lines that fail to valuate carry an inline issue and are left out of the
// totals; lines whose product left the catalog are reported as orphans.
func (e *Engine) RecomputeAll() Snapshot {
	snap := Snapshot{
		Date:       e.date,
		State:      e.state,
		Stock:      []StockLine{},
		Deliveries: []DeliveryLine{},
	}

	closing := decimal.Zero
	for _, id := range slices.Sorted(maps.Keys(e.stock)) {
		qty := e.stock[id]
		entry, ok := e.catalog.Get(id)
		if !ok {
			snap.Orphans = append(snap.Orphans, OrphanLine{ProductID: id, Line: LineStock, Quantity: qty})
			continue
		}
		line := StockLine{ProductID: id, Name: entry.Name, Quantity: qty, Value: decimal.Zero}
		value, err := catalog.Valuate(entry, qty)
		if err != nil {
			line.Issue = issueFor(err)
		} else {
			line.Value = value
			closing = closing.Add(value)
		}
		snap.Stock = append(snap.Stock, line)
	}

	delivered := decimal.Zero
	for _, id := range slices.Sorted(maps.Keys(e.deliveries)) {
		in := e.deliveries[id]
		entry, ok := e.catalog.Get(id)
		if !ok {
			snap.Orphans = append(snap.Orphans, OrphanLine{ProductID: id, Line: LineDelivery, Quantity: in.quantity})
			continue
		}
		line := DeliveryLine{ProductID: id, Name: entry.Name, Quantity: in.quantity, PackageSize: in.packageSize, Value: decimal.Zero}
		value, err := catalog.ValuateDelivery(entry, in.quantity, in.packageSize)
		if err != nil {
			line.Issue = issueFor(err)
		} else {
			line.Value = value
			delivered = delivered.Add(value)
		}
		snap.Deliveries = append(snap.Deliveries, line)
	}

	expenses := decimal.Zero
	if e.expenses != nil {
		expenses = e.expenses.Total()
	}

	snap.OpeningStockValue = e.cash.OpeningStockValue
	snap.CashCollected = e.cash.CashCollected
	snap.ManagerCashOnHand = e.cash.ManagerCashOnHand
	applyChain(&snap, delivered, closing, expenses)

	e.current = snap
	return snap
}

// applyChain threads the totals through the reconciliation formulas.
// Theoretical sales may go negative and are never clamped.
func applyChain(s *Snapshot, deliveries, closing, expenses decimal.Decimal) {
	s.DeliveriesTotal = deliveries
	s.ClosingStockValue = closing
	s.ExpensesTotal = expenses
	s.GrossStockValue = s.OpeningStockValue.Add(deliveries)
	s.TheoreticalSales = s.GrossStockValue.Sub(closing)
	s.Variance = s.TheoreticalSales.Sub(s.CashCollected)
	s.NetVariance = s.Variance.Sub(expenses)
	s.FinalResult = s.ManagerCashOnHand.Sub(s.NetVariance)
}

// Checkpoint captures the engine inputs so a failed multi-step operation
// can be undone.
type Checkpoint struct {
	state      State
	stock      map[int64]int64
	deliveries map[int64]deliveryInput
	cash       CashFigures
}

// Checkpoint returns a copy of the current inputs.
func (e *Engine) Checkpoint() Checkpoint {
	return Checkpoint{
		state:      e.state,
		stock:      maps.Clone(e.stock),
		deliveries: maps.Clone(e.deliveries),
		cash:       e.cash,
	}
}

// Restore rolls the inputs back to a checkpoint and recomputes.
func (e *Engine) Restore(cp Checkpoint) {
	e.state = cp.state
	e.stock = maps.Clone(cp.stock)
	e.deliveries = maps.Clone(cp.deliveries)
	e.cash = cp.cash
	e.RecomputeAll()
}
