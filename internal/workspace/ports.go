package workspace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/expense"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// CatalogStore persists catalog entries per tenant.
type CatalogStore interface {
	Load(ctx context.Context, tenantID int64) ([]catalog.Entry, int64, error)
	Insert(ctx context.Context, tenantID int64, e catalog.Entry) error
	InsertBatch(ctx context.Context, tenantID int64, entries []catalog.Entry) error
	Update(ctx context.Context, tenantID int64, e catalog.Entry) error
	Delete(ctx context.Context, tenantID, id int64) error
}

// ExpenseStore persists expenses per tenant and date.
type ExpenseStore interface {
	ListByDate(ctx context.Context, tenantID int64, day time.Time) ([]expense.Entry, error)
	Insert(ctx context.Context, tenantID int64, e expense.Entry) error
	Delete(ctx context.Context, tenantID int64, id uuid.UUID) error
}

// LedgerStore persists working lines and the append-only snapshot log.
type LedgerStore interface {
	Save(ctx context.Context, rec ledger.Record) error
	LoadWorking(ctx context.Context, tenantID int64, date time.Time) (ledger.WorkingSet, error)
	ListHistory(ctx context.Context, tenantID int64, filter ledger.HistoryFilter) ([]ledger.Record, error)
	GetRecord(ctx context.Context, tenantID int64, id uuid.UUID) (ledger.Record, error)
	DeleteRecord(ctx context.Context, tenantID int64, id uuid.UUID) error
}

// Auditor records who changed what.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker serialises saves per tenant.
type Locker interface {
	WithLock(ctx context.Context, tenantID int64, fn func(context.Context) error) error
}

// SaveNotifier is told about every persisted snapshot record.
type SaveNotifier interface {
	SnapshotSaved(ctx context.Context, rec ledger.Record) error
}

// Observer receives ledger activity counters.
type Observer interface {
	ObserveSave(outcome string)
	ObserveIngest(created, updated int)
}

// Deps bundles the collaborators a workspace needs. Audit, Notifier and
// Observer are optional.
type Deps struct {
	Catalog  CatalogStore
	Expenses ExpenseStore
	Ledger   LedgerStore
	Audit    Auditor
	Locker   Locker
	Notifier SaveNotifier
	Observer Observer
	Defaults ledger.IngestDefaults
	Logger   *slog.Logger
	Clock    func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.Locker == nil {
		d.Locker = shared.NewTenantLocker(nil, 0)
	}
	return d
}
