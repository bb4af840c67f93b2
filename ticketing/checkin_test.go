package ticketing

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ticket-svc/models"
)

func setupCheckInTest(t *testing.T) (*CheckInService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewCheckInService(db, zaptest.NewLogger(t)), mock
}

func checkInColumns() []string {
	return []string{
		"id", "ticket_number", "attendee_name", "attendee_email", "status",
		"checked_in", "checked_in_at", "name", "title", "organizer_id",
	}
}

func TestCheckIn_Success(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.id, t.ticket_number").
		WithArgs("TKT-AB12CD34EF56").
		WillReturnRows(sqlmock.NewRows(checkInColumns()).
			AddRow(int64(1), "TKT-AB12CD34EF56", "Jane Doe", "jane@example.com",
				"valid", false, nil, "VIP", "Kampala Jazz Night", int64(42)))
	mock.ExpectExec("UPDATE tickets SET status").
		WithArgs(models.TicketStatusUsed, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	info, err := svc.CheckIn(context.Background(), "TKT-AB12CD34EF56", 42)
	require.NoError(t, err)

	assert.True(t, info.CheckedIn)
	assert.Equal(t, models.TicketStatusUsed, info.Status)
	assert.Equal(t, "Jane Doe", info.AttendeeName)
	assert.Equal(t, "VIP", info.TicketTypeName)
	assert.Equal(t, "Kampala Jazz Night", info.EventTitle)
	require.NotNil(t, info.CheckedInAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_SecondScanReportsOriginalTimestamp(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	firstScan := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.id, t.ticket_number").
		WithArgs("TKT-AB12CD34EF56").
		WillReturnRows(sqlmock.NewRows(checkInColumns()).
			AddRow(int64(1), "TKT-AB12CD34EF56", "Jane Doe", "jane@example.com",
				"used", true, firstScan, "VIP", "Kampala Jazz Night", int64(42)))
	mock.ExpectRollback()

	info, err := svc.CheckIn(context.Background(), "TKT-AB12CD34EF56", 42)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	require.NotNil(t, info)
	require.NotNil(t, info.CheckedInAt)
	assert.True(t, firstScan.Equal(*info.CheckedInAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_RejectsNonOrganizer(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.id, t.ticket_number").
		WithArgs("TKT-AB12CD34EF56").
		WillReturnRows(sqlmock.NewRows(checkInColumns()).
			AddRow(int64(1), "TKT-AB12CD34EF56", "Jane Doe", "jane@example.com",
				"valid", false, nil, "VIP", "Kampala Jazz Night", int64(42)))
	mock.ExpectRollback()

	_, err := svc.CheckIn(context.Background(), "TKT-AB12CD34EF56", 99)
	assert.ErrorIs(t, err, ErrNotEventOrganizer)
}

func TestCheckIn_CancelledTicket(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.id, t.ticket_number").
		WithArgs("TKT-AB12CD34EF56").
		WillReturnRows(sqlmock.NewRows(checkInColumns()).
			AddRow(int64(1), "TKT-AB12CD34EF56", "Jane Doe", "jane@example.com",
				"cancelled", false, nil, "VIP", "Kampala Jazz Night", int64(42)))
	mock.ExpectRollback()

	info, err := svc.CheckIn(context.Background(), "TKT-AB12CD34EF56", 42)
	assert.ErrorIs(t, err, ErrInvalidTicketStatus)
	require.NotNil(t, info)
	assert.Equal(t, models.TicketStatusCancelled, info.Status)
}

func TestCheckIn_NotFound(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT t.id, t.ticket_number").
		WithArgs("TKT-DOESNOTEXIST").
		WillReturnRows(sqlmock.NewRows(checkInColumns()))
	mock.ExpectRollback()

	_, err := svc.CheckIn(context.Background(), "TKT-DOESNOTEXIST", 42)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestExportCSV(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	checkedInAt := time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	purchasedAt := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT t.ticket_number, t.attendee_name").
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"ticket_number", "attendee_name", "attendee_email", "name",
			"order_number", "status", "checked_in", "checked_in_at", "created_at",
		}).
			AddRow("TKT-AB12CD34EF56", "Jane Doe", "jane@example.com", "VIP",
				"ORD-1234567890", "used", true, checkedInAt, purchasedAt).
			AddRow("TKT-FF00AA11BB22", "John Okello", "john@example.com", "Regular",
				"ORD-0987654321", "valid", false, nil, purchasedAt))

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), &buf, "ev-1"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"TKT-AB12CD34EF56", "Jane Doe", "jane@example.com", "VIP",
		"ORD-1234567890", "used", "Yes", "2026-03-14 07:30 PM", "2026-03-01 10:05 AM",
	}, records[1])
	assert.Equal(t, "No", records[2][6])
	assert.Empty(t, records[2][7])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireForEvent(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectExec("UPDATE tickets SET status").
		WithArgs(models.TicketStatusExpired, "ev-1", models.TicketStatusValid).
		WillReturnResult(sqlmock.NewResult(0, 3))

	expired, err := svc.ExpireForEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireEnded(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectExec("UPDATE tickets SET status").
		WithArgs(models.TicketStatusExpired, models.TicketStatusValid).
		WillReturnResult(sqlmock.NewResult(0, 7))

	expired, err := svc.ExpireEnded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrganizesEvent(t *testing.T) {
	svc, mock := setupCheckInTest(t)

	mock.ExpectQuery("SELECT organizer_id FROM events").
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"organizer_id"}).AddRow(int64(42)))

	ok, err := svc.OrganizesEvent(context.Background(), "ev-1", 42)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT organizer_id FROM events").
		WithArgs("ev-missing").
		WillReturnRows(sqlmock.NewRows([]string{"organizer_id"}))

	_, err = svc.OrganizesEvent(context.Background(), "ev-missing", 42)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
