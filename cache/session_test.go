package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-svc/models"
)

func TestSessionStore_SaveAssignsIDAndTTL(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, 15*time.Minute)

	session := &CheckoutSession{
		UserID:      9,
		EventID:     "ev-1",
		Selections:  []models.Selection{{TicketTypeID: 1, Quantity: 2}},
		Email:       "jane@example.com",
		Subtotal:    100000,
		PlatformFee: 2000,
		Total:       102000,
	}

	mock.Regexp().ExpectSet(`checkout:.+`, `.+`, 15*time.Minute).SetVal("OK")

	require.NoError(t, store.Save(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetRoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, 15*time.Minute)

	session := CheckoutSession{
		ID:          "sess-1",
		UserID:      9,
		EventID:     "ev-1",
		Selections:  []models.Selection{{TicketTypeID: 1, Quantity: 2}},
		Email:       "jane@example.com",
		Subtotal:    100000,
		PlatformFee: 2000,
		Total:       102000,
		CreatedAt:   time.Now(),
	}
	data, err := json.Marshal(session)
	require.NoError(t, err)

	mock.ExpectGet("checkout:sess-1").SetVal(string(data))

	got, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, session.Total, got.Total)
	assert.Equal(t, session.Selections, got.Selections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetExpired(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, 15*time.Minute)

	mock.ExpectGet("checkout:gone").RedisNil()

	_, err := store.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, 15*time.Minute)

	mock.ExpectDel("checkout:sess-1").SetVal(1)

	assert.NoError(t, store.Delete(context.Background(), "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
