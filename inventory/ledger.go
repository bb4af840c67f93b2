// Package inventory tracks per-ticket-type sold counts. Reserve is an
// advisory check at checkout time; the durable decrement happens through
// Commit, a single compare-and-increment statement that re-validates capacity
// under the caller's transaction so concurrent buyers can never oversell.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticket-svc/models"

	"go.uber.org/zap"
)

var (
	ErrTicketTypeNotFound    = errors.New("ticket type not found")
	ErrInactiveTicketType    = errors.New("ticket type is not active")
	ErrOutsideSaleWindow     = errors.New("ticket type is outside its sale window")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrQuantityExceedsMax    = errors.New("quantity exceeds max per order")
	ErrInsufficientInventory = errors.New("insufficient inventory")
)

// Reservation is a provisional hold on inventory between checkout and payment
// confirmation. It carries the price snapshot used for the order item and is
// re-validated by Commit; nothing is mutated until then.
type Reservation struct {
	TicketTypeID   int64
	TicketTypeName string
	Quantity       int
	UnitPrice      int64
}

type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewLedger(db *sql.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Reserve validates a selection against current capacity and the sale window.
// It performs no writes: the gap between checkout and asynchronous payment
// confirmation is tolerated by re-checking capacity in Commit.
func (l *Ledger) Reserve(ctx context.Context, ticketTypeID int64, quantity int) (*Reservation, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var tt models.TicketType
	err := l.db.QueryRowContext(ctx,
		"SELECT id, name, price, quantity_available, quantity_sold, max_per_order, is_active, sale_start, sale_end FROM ticket_types WHERE id = $1",
		ticketTypeID,
	).Scan(&tt.ID, &tt.Name, &tt.Price, &tt.QuantityAvailable, &tt.QuantitySold,
		&tt.MaxPerOrder, &tt.IsActive, &tt.SaleStart, &tt.SaleEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketTypeNotFound
		}
		return nil, fmt.Errorf("failed to load ticket type: %w", err)
	}

	if !tt.IsActive {
		return nil, ErrInactiveTicketType
	}
	now := time.Now()
	if now.Before(tt.SaleStart) || now.After(tt.SaleEnd) {
		return nil, ErrOutsideSaleWindow
	}
	if tt.MaxPerOrder > 0 && quantity > tt.MaxPerOrder {
		return nil, ErrQuantityExceedsMax
	}
	if quantity > tt.Remaining() {
		return nil, ErrInsufficientInventory
	}

	return &Reservation{
		TicketTypeID:   tt.ID,
		TicketTypeName: tt.Name,
		Quantity:       quantity,
		UnitPrice:      tt.Price,
	}, nil
}

// Commit durably decrements remaining capacity inside tx. The WHERE clause is
// the oversell guard: if a concurrent commit consumed the capacity since the
// reservation was checked, no row matches and ErrInsufficientInventory is
// returned.
func (l *Ledger) Commit(ctx context.Context, tx *sql.Tx, res *Reservation) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE ticket_types SET quantity_sold = quantity_sold + $1 WHERE id = $2 AND quantity_sold + $1 <= quantity_available",
		res.Quantity, res.TicketTypeID,
	)
	if err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read commit result: %w", err)
	}
	if affected == 0 {
		l.logger.Warn("Inventory commit rejected",
			zap.Int64("ticket_type_id", res.TicketTypeID),
			zap.Int("quantity", res.Quantity),
		)
		return ErrInsufficientInventory
	}

	return nil
}

// Release returns quantity to the pool on cancellation. GREATEST floors the
// counter at zero so a release can never drive quantity_sold negative.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, ticketTypeID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	_, err := tx.ExecContext(ctx,
		"UPDATE ticket_types SET quantity_sold = GREATEST(quantity_sold - $1, 0) WHERE id = $2",
		quantity, ticketTypeID,
	)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	return nil
}
