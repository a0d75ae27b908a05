package expense

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is an add/remove-only list of expenses for one period. Entries are
// never edited in place. Not safe for concurrent use.
type Ledger struct {
	entries []Entry
	newID   func() uuid.UUID
}

// NewLedger builds a ledger from persisted entries, kept in the given order.
func NewLedger(entries []Entry) *Ledger {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Ledger{entries: cp, newID: uuid.New}
}

// Prepare validates an expense and assigns it an id without recording it.
func (l *Ledger) Prepare(motif string, amount decimal.Decimal, date time.Time) (Entry, error) {
	motif = strings.TrimSpace(motif)
	if motif == "" {
		return Entry{}, ErrMotifRequired
	}
	if amount.IsNegative() {
		return Entry{}, ErrNegativeAmount
	}
	return Entry{ID: l.newID(), Motif: motif, Amount: amount, Date: date}, nil
}

// Append records a prepared entry.
func (l *Ledger) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Add validates and records a new expense.
func (l *Ledger) Add(motif string, amount decimal.Decimal, date time.Time) (Entry, error) {
	e, err := l.Prepare(motif, amount, date)
	if err != nil {
		return Entry{}, err
	}
	l.Append(e)
	return e, nil
}

// Get returns the entry with the given id.
func (l *Ledger) Get(id uuid.UUID) (Entry, bool) {
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove deletes an expense.
func (l *Ledger) Remove(id uuid.UUID) error {
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// Total sums every entry on each call.
func (l *Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.entries {
		total = total.Add(e.Amount)
	}
	return total
}

// List returns the entries in insertion order.
func (l *Ledger) List() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int { return len(l.entries) }
