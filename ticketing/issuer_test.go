package ticketing

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ticket-svc/models"
)

var ticketNumberPattern = regexp.MustCompile(`^TKT-[0-9A-F]{12}$`)

func TestNewTicketNumber_Format(t *testing.T) {
	number, err := newTicketNumber()
	require.NoError(t, err)
	assert.Regexp(t, ticketNumberPattern, number)
}

func TestNewTicketNumber_NoCollisionsInPractice(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		number, err := newTicketNumber()
		require.NoError(t, err)
		if _, dup := seen[number]; dup {
			t.Fatalf("duplicate ticket number after %d draws: %s", i, number)
		}
		seen[number] = struct{}{}
	}
}

func TestIssuer_Payload(t *testing.T) {
	issuer := NewIssuer("CHEERS", t.TempDir(), zaptest.NewLogger(t))
	assert.Equal(t, "CHEERS-TKT-AB12CD34EF56", issuer.Payload("TKT-AB12CD34EF56"))
}

func setupIssueTest(t *testing.T) (*Issuer, *sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewIssuer("CHEERS", t.TempDir(), zaptest.NewLogger(t)), db, mock
}

func TestIssuer_Issue_Success(t *testing.T) {
	issuer, db, mock := setupIssueTest(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO tickets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	tx, err := db.Begin()
	require.NoError(t, err)

	order := &models.Order{ID: 3, EventID: "ev-1", UserID: 9}
	item := &models.OrderItem{ID: 4, TicketTypeID: 1, Quantity: 1}

	ticket, err := issuer.Issue(context.Background(), tx, order, item, "Jane Doe", "jane@example.com")
	require.NoError(t, err)

	assert.Equal(t, int64(7), ticket.ID)
	assert.Regexp(t, ticketNumberPattern, ticket.TicketNumber)
	assert.Equal(t, "CHEERS-"+ticket.TicketNumber, ticket.QRPayload)
	assert.Equal(t, models.TicketStatusValid, ticket.Status)
	assert.Equal(t, "Jane Doe", ticket.AttendeeName)
	assert.NotEmpty(t, ticket.QRImagePath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssuer_Issue_RetriesOnNumberCollision(t *testing.T) {
	issuer, db, mock := setupIssueTest(t)

	mock.ExpectBegin()
	// First insert hits the unique constraint (DO NOTHING returns no row),
	// second attempt lands.
	mock.ExpectQuery("INSERT INTO tickets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectQuery("INSERT INTO tickets").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), time.Now()))

	tx, err := db.Begin()
	require.NoError(t, err)

	order := &models.Order{ID: 3, EventID: "ev-1", UserID: 9}
	item := &models.OrderItem{ID: 4, TicketTypeID: 1, Quantity: 1}

	ticket, err := issuer.Issue(context.Background(), tx, order, item, "Jane Doe", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(8), ticket.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssuer_Issue_GivesUpAfterMaxAttempts(t *testing.T) {
	issuer, db, mock := setupIssueTest(t)

	mock.ExpectBegin()
	for i := 0; i < maxNumberAttempts; i++ {
		mock.ExpectQuery("INSERT INTO tickets").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	}

	tx, err := db.Begin()
	require.NoError(t, err)

	order := &models.Order{ID: 3, EventID: "ev-1", UserID: 9}
	item := &models.OrderItem{ID: 4, TicketTypeID: 1, Quantity: 1}

	_, err = issuer.Issue(context.Background(), tx, order, item, "Jane Doe", "jane@example.com")
	assert.ErrorIs(t, err, ErrTicketNumberExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
