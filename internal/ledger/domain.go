package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// State enumerates the lifecycle of the working snapshot.
type State string

const (
	// StateEmpty indicates nothing has been entered for the date yet.
	StateEmpty State = "empty"
	// StateInProgress indicates unsaved edits.
	StateInProgress State = "in_progress"
	// StateSaved indicates the working snapshot matches the last save.
	StateSaved State = "saved"
)

// IssueCode classifies a valuation failure reported on a single line.
type IssueCode string

const (
	// IssueMissingPricingParameters flags a special-priced product without group parameters.
	IssueMissingPricingParameters IssueCode = "missing_pricing_parameters"
	// IssueInvalidPackageSize flags a delivery whose package size left the catalog.
	IssueInvalidPackageSize IssueCode = "invalid_package_size"
	// IssueValuationFailed flags any other valuation failure.
	IssueValuationFailed IssueCode = "valuation_failed"
)

// LineIssue describes why a line could not be valuated. The line is then
// excluded from the totals.
type LineIssue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// StockLine is a counted quantity for one product.
type StockLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Value     decimal.Decimal `json:"value"`
	Issue     *LineIssue      `json:"issue,omitempty"`
}

// DeliveryLine is a delivered quantity for one product.
type DeliveryLine struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	Quantity    int64           `json:"quantity"`
	PackageSize int64           `json:"package_size"`
	Value       decimal.Decimal `json:"value"`
	Issue       *LineIssue      `json:"issue,omitempty"`
}

// LineKind distinguishes stock from delivery lines.
type LineKind string

const (
	// LineStock marks stock count lines.
	LineStock LineKind = "stock"
	// LineDelivery marks delivery lines.
	LineDelivery LineKind = "delivery"
)

// OrphanLine is a line whose product was removed from the catalog.
type OrphanLine struct {
	ProductID int64    `json:"product_id"`
	Line      LineKind `json:"line"`
	Quantity  int64    `json:"quantity"`
}

// CashFigures are the manually entered amounts of a snapshot.
type CashFigures struct {
	OpeningStockValue decimal.Decimal `json:"opening_stock_value"`
	CashCollected     decimal.Decimal `json:"cash_collected"`
	ManagerCashOnHand decimal.Decimal `json:"manager_cash_on_hand"`
}

// Snapshot is one reconciliation date with every derived total.
type Snapshot struct {
	Date       time.Time      `json:"date"`
	State      State          `json:"state"`
	Stock      []StockLine    `json:"stock"`
	Deliveries []DeliveryLine `json:"deliveries"`
	Orphans    []OrphanLine   `json:"orphans,omitempty"`

	OpeningStockValue decimal.Decimal `json:"opening_stock_value"`
	DeliveriesTotal   decimal.Decimal `json:"deliveries_total"`
	GrossStockValue   decimal.Decimal `json:"gross_stock_value"`
	ClosingStockValue decimal.Decimal `json:"closing_stock_value"`
	TheoreticalSales  decimal.Decimal `json:"theoretical_sales"`
	CashCollected     decimal.Decimal `json:"cash_collected"`
	Variance          decimal.Decimal `json:"variance"`
	ExpensesTotal     decimal.Decimal `json:"expenses_total"`
	NetVariance       decimal.Decimal `json:"net_variance"`
	ManagerCashOnHand decimal.Decimal `json:"manager_cash_on_hand"`
	FinalResult       decimal.Decimal `json:"final_result"`
}

// Cash returns the manually entered figures of the snapshot.
func (s Snapshot) Cash() CashFigures {
	return CashFigures{
		OpeningStockValue: s.OpeningStockValue,
		CashCollected:     s.CashCollected,
		ManagerCashOnHand: s.ManagerCashOnHand,
	}
}

// Record is an immutable saved snapshot. Records are append-only and keyed
// by (tenant, date, saved at); saving the same date twice yields two records.
type Record struct {
	ID       uuid.UUID `json:"id"`
	TenantID int64     `json:"tenant_id"`
	Date     time.Time `json:"date"`
	SavedAt  time.Time `json:"saved_at"`
	SavedBy  int64     `json:"saved_by"`
	Snapshot Snapshot  `json:"snapshot"`
}

// WorkingSet is the persisted state a workspace restores for a date.
type WorkingSet struct {
	Stock      []StockLine
	Deliveries []DeliveryLine
	Cash       CashFigures
	Saved      bool
}

// HistoryFilter narrows the history listing. Zero bounds are open.
type HistoryFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

var (
	// ErrProductNotFound occurs when a quantity targets a product missing from the catalog.
	ErrProductNotFound = fmt.Errorf("ledger: product %w", shared.ErrNotFound)
	// ErrRecordNotFound occurs when a historical record is unknown.
	ErrRecordNotFound = fmt.Errorf("ledger: snapshot record %w", shared.ErrNotFound)
	// ErrInvalidQuantity occurs when a quantity is negative.
	ErrInvalidQuantity = catalog.ErrInvalidQuantity
	// ErrEmptyBatch occurs when ingestion receives no results.
	ErrEmptyBatch = fmt.Errorf("%w: ledger: no quantities to ingest", shared.ErrValidation)
)

func issueFor(err error) *LineIssue {
	code := IssueValuationFailed
	switch {
	case errors.Is(err, catalog.ErrMissingPricingParameters):
		code = IssueMissingPricingParameters
	case errors.Is(err, catalog.ErrInvalidPackageSize):
		code = IssueInvalidPackageSize
	}
	return &LineIssue{Code: code, Message: err.Error()}
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
