package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/barledger/internal/shared"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// scriptedTx answers the record deletion queries; other pgx.Tx methods panic
// through the nil embed.
type scriptedTx struct {
	pgx.Tx
	date      time.Time
	found     bool
	remaining bool
	execs     []string
}

func (t *scriptedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if strings.HasPrefix(sql, "DELETE FROM ledger_snapshots") {
		return scanFunc(func(dest ...any) error {
			if !t.found {
				return pgx.ErrNoRows
			}
			*dest[0].(*time.Time) = t.date
			return nil
		})
	}
	return scanFunc(func(dest ...any) error {
		*dest[0].(*bool) = t.remaining
		return nil
	})
}

func (t *scriptedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func TestDeleteLastRecordClearsWorkingLines(t *testing.T) {
	tx := &scriptedTx{date: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), found: true}
	require.NoError(t, deleteRecord(context.Background(), tx, 3, uuid.New()))

	require.Len(t, tx.execs, 2)
	assert.Contains(t, tx.execs[0], "stock_entries")
	assert.Contains(t, tx.execs[1], "delivery_entries")
}

func TestDeleteRecordKeepsLinesWhileTheDateHasRecords(t *testing.T) {
	tx := &scriptedTx{date: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), found: true, remaining: true}
	require.NoError(t, deleteRecord(context.Background(), tx, 3, uuid.New()))
	assert.Empty(t, tx.execs)
}

func TestDeleteMissingRecord(t *testing.T) {
	tx := &scriptedTx{}
	err := deleteRecord(context.Background(), tx, 3, uuid.New())
	require.ErrorIs(t, err, ErrRecordNotFound)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.Empty(t, tx.execs)
}
