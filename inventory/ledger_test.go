package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupLedgerTest(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewLedger(db, zaptest.NewLogger(t)), mock
}

func ticketTypeRows(available, sold, maxPerOrder int, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "price", "quantity_available", "quantity_sold",
		"max_per_order", "is_active", "sale_start", "sale_end",
	}).AddRow(1, "General Admission", int64(50000), available, sold, maxPerOrder, active,
		now.Add(-time.Hour), now.Add(time.Hour))
}

func TestLedger_Reserve_Success(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	mock.ExpectQuery("SELECT id, name, price, quantity_available, quantity_sold, max_per_order, is_active, sale_start, sale_end FROM ticket_types WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(ticketTypeRows(100, 10, 10, true))

	res, err := ledger.Reserve(context.Background(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.TicketTypeID)
	assert.Equal(t, "General Admission", res.TicketTypeName)
	assert.Equal(t, 2, res.Quantity)
	assert.Equal(t, int64(50000), res.UnitPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Reserve_InvalidQuantity(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	_, err := ledger.Reserve(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Reserve_ExceedsMaxPerOrder(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	mock.ExpectQuery("SELECT id, name, price, quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(ticketTypeRows(100, 0, 4, true))

	_, err := ledger.Reserve(context.Background(), 1, 5)
	assert.ErrorIs(t, err, ErrQuantityExceedsMax)
}

func TestLedger_Reserve_Inactive(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	mock.ExpectQuery("SELECT id, name, price, quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(ticketTypeRows(100, 0, 10, false))

	_, err := ledger.Reserve(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrInactiveTicketType)
}

func TestLedger_Reserve_OutsideSaleWindow(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	past := time.Now().Add(-48 * time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "name", "price", "quantity_available", "quantity_sold",
		"max_per_order", "is_active", "sale_start", "sale_end",
	}).AddRow(1, "Early Bird", int64(30000), 100, 0, 10, true, past, past.Add(time.Hour))

	mock.ExpectQuery("SELECT id, name, price, quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	_, err := ledger.Reserve(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrOutsideSaleWindow)
}

func TestLedger_Reserve_InsufficientInventory(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	// available=2, sold=0; a concurrent order already reserved 2, B asks for 1
	// more than remaining after A committed.
	mock.ExpectQuery("SELECT id, name, price, quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(ticketTypeRows(2, 2, 10, true))

	_, err := ledger.Reserve(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
}

func TestLedger_Commit_Success(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ticket_types SET quantity_sold = quantity_sold \\+ \\$1 WHERE id = \\$2 AND quantity_sold \\+ \\$1 <= quantity_available").
		WithArgs(2, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := ledger.db.Begin()
	require.NoError(t, err)

	err = ledger.Commit(context.Background(), tx, &Reservation{TicketTypeID: 1, Quantity: 2})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Commit_CapacityConsumedConcurrently(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	// The guard matches no row: another commit took the capacity between the
	// advisory reserve and this commit.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ticket_types SET quantity_sold = quantity_sold \\+ \\$1").
		WithArgs(1, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := ledger.db.Begin()
	require.NoError(t, err)

	err = ledger.Commit(context.Background(), tx, &Reservation{TicketTypeID: 1, Quantity: 1})
	assert.ErrorIs(t, err, ErrInsufficientInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release_ClampsAtZero(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ticket_types SET quantity_sold = GREATEST\\(quantity_sold - \\$1, 0\\) WHERE id = \\$2").
		WithArgs(3, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := ledger.db.Begin()
	require.NoError(t, err)

	err = ledger.Release(context.Background(), tx, 1, 3)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release_RejectsNonPositiveQuantity(t *testing.T) {
	ledger, mock := setupLedgerTest(t)

	mock.ExpectBegin()
	tx, err := ledger.db.Begin()
	require.NoError(t, err)

	err = ledger.Release(context.Background(), tx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
