package expense

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Entry is a dated expense paid out of the till.
type Entry struct {
	ID     uuid.UUID       `json:"id"`
	Motif  string          `json:"motif"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

var (
	// ErrEntryNotFound occurs when the expense id is unknown.
	ErrEntryNotFound = fmt.Errorf("expense: entry %w", shared.ErrNotFound)
	// ErrMotifRequired occurs when the reason is blank.
	ErrMotifRequired = fmt.Errorf("%w: expense: motif required", shared.ErrValidation)
	// ErrNegativeAmount occurs when the amount is below zero.
	ErrNegativeAmount = fmt.Errorf("%w: expense: amount must be >= 0", shared.ErrValidation)
)
