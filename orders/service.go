// Package orders owns the order lifecycle: pending at checkout, paid or
// failed after the gateway settles, cancelled or refunded afterwards.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-svc/inventory"
	"ticket-svc/kafka"
	"ticket-svc/models"
	"ticket-svc/ticketing"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrEventNotPublished     = errors.New("event is not open for sales")
	ErrNotOrderOwner         = errors.New("order belongs to another user")
	ErrCannotCancelPaidOrder = errors.New("paid orders cannot be cancelled, request a refund")
	ErrAlreadyCancelled      = errors.New("order is already cancelled")
	ErrOrderCancelled        = errors.New("order was cancelled before payment settled, refund required")
	ErrOrderNumberExhausted  = errors.New("could not generate a unique order number")
)

// Quote prices a set of selections before any order exists. Amounts are
// minor currency units; Total is always Subtotal + PlatformFee.
type Quote struct {
	Reservations []*inventory.Reservation `json:"-"`
	Subtotal     int64                    `json:"subtotal"`
	PlatformFee  int64                    `json:"platform_fee"`
	Total        int64                    `json:"total"`
}

type Service struct {
	db             *sql.DB
	ledger         *inventory.Ledger
	issuer         *ticketing.Issuer
	producer       sarama.SyncProducer
	topic          string
	commissionRate decimal.Decimal
	logger         *zap.Logger
}

func NewService(db *sql.DB, ledger *inventory.Ledger, issuer *ticketing.Issuer, producer sarama.SyncProducer, topic string, commissionRate decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{
		db:             db,
		ledger:         ledger,
		issuer:         issuer,
		producer:       producer,
		topic:          topic,
		commissionRate: commissionRate,
		logger:         logger,
	}
}

// PlatformFee computes the commission on a subtotal, rounded to the nearest
// minor unit.
func (s *Service) PlatformFee(subtotal int64) int64 {
	return decimal.NewFromInt(subtotal).Mul(s.commissionRate).Round(0).IntPart()
}

// PriceQuote validates every selection against the ledger and prices the
// whole basket. All-or-nothing: one unsellable line fails the quote.
func (s *Service) PriceQuote(ctx context.Context, selections []models.Selection) (*Quote, error) {
	quote := &Quote{}
	for _, sel := range selections {
		res, err := s.ledger.Reserve(ctx, sel.TicketTypeID, sel.Quantity)
		if err != nil {
			return nil, err
		}
		quote.Reservations = append(quote.Reservations, res)
		quote.Subtotal += res.UnitPrice * int64(res.Quantity)
	}
	quote.PlatformFee = s.PlatformFee(quote.Subtotal)
	quote.Total = quote.Subtotal + quote.PlatformFee
	return quote, nil
}

// Create opens a pending order for the event. Inventory is not consumed here;
// the selections are validated and priced, and the ledger is charged when the
// order transitions to paid.
func (s *Service) Create(ctx context.Context, userID int64, req *models.CheckoutRequest) (*models.Order, error) {
	var eventStatus string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM events WHERE id = $1", req.EventID,
	).Scan(&eventStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	if eventStatus != string(models.EventStatusPublished) {
		return nil, ErrEventNotPublished
	}

	quote, err := s.PriceQuote(ctx, req.Selections)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order := &models.Order{
		UserID:      userID,
		EventID:     req.EventID,
		Status:      models.OrderStatusPending,
		Subtotal:    quote.Subtotal,
		PlatformFee: quote.PlatformFee,
		TotalAmount: quote.Total,
		Email:       req.Email,
		Phone:       req.Phone,
	}

	if err := s.insertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	for _, res := range quote.Reservations {
		item := models.OrderItem{
			OrderID:        order.ID,
			TicketTypeID:   res.TicketTypeID,
			TicketTypeName: res.TicketTypeName,
			Quantity:       res.Quantity,
			PricePerTicket: res.UnitPrice,
			Subtotal:       res.UnitPrice * int64(res.Quantity),
		}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, ticket_type_id, quantity, price_per_ticket, subtotal)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			item.OrderID, item.TicketTypeID, item.Quantity, item.PricePerTicket, item.Subtotal,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", userID),
		zap.Int64("total_amount", order.TotalAmount),
	)
	return order, nil
}

// insertOrder writes the order row, regenerating the order number on the
// rare collision. ON CONFLICT DO NOTHING keeps the surrounding transaction
// usable across attempts.
func (s *Service) insertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := newOrderNumber()
		if err != nil {
			return fmt.Errorf("failed to generate order number: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, user_id, event_id, status, subtotal, platform_fee, total_amount, email, phone)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (order_number) DO NOTHING
			 RETURNING id, created_at, updated_at`,
			number, order.UserID, order.EventID, order.Status,
			order.Subtotal, order.PlatformFee, order.TotalAmount, order.Email, order.Phone,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Order number collision, regenerating", zap.String("order_number", number))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		order.OrderNumber = number
		return nil
	}
	return ErrOrderNumberExhausted
}

// AttachIntent records the gateway payment intent on a pending order.
func (s *Service) AttachIntent(ctx context.Context, orderID int64, intentID, paymentMethod string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_intent_id = $1, payment_method = $2, updated_at = NOW() WHERE id = $3",
		intentID, paymentMethod, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach payment intent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// FindIDByIntent resolves the order carrying a gateway payment intent.
// Used by webhook delivery, where only the intent ID is known.
func (s *Service) FindIDByIntent(ctx context.Context, intentID string) (int64, error) {
	var orderID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM orders WHERE payment_intent_id = $1", intentID,
	).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("failed to find order by intent: %w", err)
	}
	return orderID, nil
}

// MarkPaid performs the paid transition: charge the ledger for every item,
// mint tickets, decrement event capacity, and flip the status, all in one
// transaction. Calling it again for an already-paid order is a no-op, so the
// payment-success callback and the webhook can race safely. The returned bool
// reports whether this call actually made the transition; replays and no-ops
// return false.
func (s *Service) MarkPaid(ctx context.Context, orderID int64, intentID string) (*models.Order, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order := &models.Order{ID: orderID}
	err = tx.QueryRowContext(ctx,
		`SELECT order_number, user_id, event_id, status, subtotal, platform_fee, total_amount, email, created_at
		 FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&order.OrderNumber, &order.UserID, &order.EventID, &order.Status,
		&order.Subtotal, &order.PlatformFee, &order.TotalAmount, &order.Email, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("failed to load order: %w", err)
	}

	switch order.Status {
	case models.OrderStatusPaid:
		s.logger.Info("Order already paid, skipping",
			zap.String("order_number", order.OrderNumber),
		)
		loaded, err := s.GetOrder(ctx, orderID)
		return loaded, false, err
	case models.OrderStatusCancelled, models.OrderStatusRefunded:
		// The user cancelled before the gateway settled; the money has to go
		// back, not the order forward.
		s.logger.Warn("Payment settled for a cancelled order",
			zap.String("order_number", order.OrderNumber),
			zap.String("payment_intent_id", intentID),
		)
		return nil, false, ErrOrderCancelled
	}

	items, err := loadItems(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	order.Items = items

	var attendeeName string
	if err := tx.QueryRowContext(ctx,
		"SELECT name FROM users WHERE id = $1", order.UserID,
	).Scan(&attendeeName); err != nil {
		return nil, false, fmt.Errorf("failed to load buyer: %w", err)
	}

	ticketCount := 0
	for i := range items {
		item := &items[i]
		res := &inventory.Reservation{TicketTypeID: item.TicketTypeID, Quantity: item.Quantity}
		if err := s.ledger.Commit(ctx, tx, res); err != nil {
			if errors.Is(err, inventory.ErrInsufficientInventory) {
				// Sold out between checkout and settlement. Roll back and
				// record the failure; the caller refunds through the gateway.
				tx.Rollback()
				if failErr := s.MarkFailed(ctx, orderID); failErr != nil {
					s.logger.Error("Failed to mark starved order as failed",
						zap.Int64("order_id", orderID), zap.Error(failErr))
				}
			}
			return nil, false, err
		}

		for unit := 0; unit < item.Quantity; unit++ {
			ticket, err := s.issuer.Issue(ctx, tx, order, item, attendeeName, order.Email)
			if err != nil {
				return nil, false, err
			}
			order.Tickets = append(order.Tickets, *ticket)
			ticketCount++
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE events SET remaining_capacity = GREATEST(remaining_capacity - $1, 0) WHERE id = $2",
		ticketCount, order.EventID,
	); err != nil {
		return nil, false, fmt.Errorf("failed to update event capacity: %w", err)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_intent_id = $2, paid_at = $3, updated_at = NOW() WHERE id = $4",
		models.OrderStatusPaid, intentID, now, orderID,
	); err != nil {
		return nil, false, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit paid transition: %w", err)
	}

	order.Status = models.OrderStatusPaid
	order.PaymentIntentID = intentID
	order.PaidAt = &now

	s.logger.Info("Order paid",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Int("ticket_count", ticketCount),
	)

	s.publish(ctx, order, ticketCount, "order_paid")
	return order, true, nil
}

// MarkFailed flips a pending order to failed. Paid orders are never demoted.
func (s *Service) MarkFailed(ctx context.Context, orderID int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusFailed, orderID, models.OrderStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOrderNotFound
	}

	s.logger.Info("Order marked failed", zap.Int64("order_id", orderID))

	if s.producer != nil {
		order := &models.Order{ID: orderID}
		err := s.db.QueryRowContext(ctx,
			"SELECT order_number, user_id, event_id, total_amount FROM orders WHERE id = $1", orderID,
		).Scan(&order.OrderNumber, &order.UserID, &order.EventID, &order.TotalAmount)
		if err != nil {
			s.logger.Warn("Failed to load order for failure event", zap.Error(err))
			return nil
		}
		s.publish(ctx, order, 0, "order_failed")
	}
	return nil
}

// Cancel voids a pending or failed order. Any tickets minted for it are
// cancelled and their inventory released; for orders that never reached paid
// there are no tickets, so the ledger is untouched.
func (s *Service) Cancel(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order := &models.Order{ID: orderID}
	err = tx.QueryRowContext(ctx,
		"SELECT order_number, user_id, event_id, status, total_amount FROM orders WHERE id = $1 FOR UPDATE",
		orderID,
	).Scan(&order.OrderNumber, &order.UserID, &order.EventID, &order.Status, &order.TotalAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	switch order.Status {
	case models.OrderStatusCancelled:
		return nil, ErrAlreadyCancelled
	case models.OrderStatusPaid, models.OrderStatusRefunded:
		return nil, ErrCannotCancelPaidOrder
	}

	// Release only what was actually minted. A pending order never charged
	// the ledger, so its release set is empty.
	rows, err := tx.QueryContext(ctx,
		"SELECT ticket_type_id, COUNT(*) FROM tickets WHERE order_id = $1 AND status = $2 GROUP BY ticket_type_id",
		orderID, models.TicketStatusValid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count order tickets: %w", err)
	}
	releases := map[int64]int{}
	released := 0
	for rows.Next() {
		var typeID int64
		var count int
		if err := rows.Scan(&typeID, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan ticket counts: %w", err)
		}
		releases[typeID] = count
		released += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ticket counts: %w", err)
	}

	if released > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE tickets SET status = $1 WHERE order_id = $2 AND status = $3",
			models.TicketStatusCancelled, orderID, models.TicketStatusValid,
		); err != nil {
			return nil, fmt.Errorf("failed to cancel tickets: %w", err)
		}
		for typeID, count := range releases {
			if err := s.ledger.Release(ctx, tx, typeID, count); err != nil {
				return nil, err
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE events SET remaining_capacity = remaining_capacity + $1 WHERE id = $2",
			released, order.EventID,
		); err != nil {
			return nil, fmt.Errorf("failed to restore event capacity: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		models.OrderStatusCancelled, orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	order.Status = models.OrderStatusCancelled
	s.logger.Info("Order cancelled",
		zap.String("order_number", order.OrderNumber),
		zap.Int("tickets_released", released),
	)

	s.publish(ctx, order, released, "order_cancelled")
	return order, nil
}

// GetOrder loads an order with its items and tickets.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order := &models.Order{ID: orderID}
	var paidAt sql.NullTime
	var intentID, paymentMethod, phone sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT order_number, user_id, event_id, status, subtotal, platform_fee, total_amount,
		        payment_method, payment_intent_id, email, phone, created_at, updated_at, paid_at
		 FROM orders WHERE id = $1`,
		orderID,
	).Scan(&order.OrderNumber, &order.UserID, &order.EventID, &order.Status,
		&order.Subtotal, &order.PlatformFee, &order.TotalAmount,
		&paymentMethod, &intentID, &order.Email, &phone,
		&order.CreatedAt, &order.UpdatedAt, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	order.PaymentMethod = paymentMethod.String
	order.PaymentIntentID = intentID.String
	order.Phone = phone.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	items, err := loadItems(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	ticketRows, err := tx.QueryContext(ctx,
		`SELECT id, ticket_number, qr_payload, qr_image_path, ticket_type_id, attendee_name, attendee_email,
		        status, checked_in, checked_in_at, created_at
		 FROM tickets WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	defer ticketRows.Close()

	for ticketRows.Next() {
		ticket := models.Ticket{OrderID: orderID}
		var checkedInAt sql.NullTime
		var imagePath sql.NullString
		if err := ticketRows.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.QRPayload, &imagePath,
			&ticket.TicketTypeID, &ticket.AttendeeName, &ticket.AttendeeEmail,
			&ticket.Status, &ticket.CheckedIn, &checkedInAt, &ticket.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		ticket.QRImagePath = imagePath.String
		if checkedInAt.Valid {
			ticket.CheckedInAt = &checkedInAt.Time
		}
		order.Tickets = append(order.Tickets, ticket)
	}
	if err := ticketRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}

	return order, nil
}

// ListByUser returns a user's orders, newest first, without their line items.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_number, event_id, status, subtotal, platform_fee, total_amount, created_at, paid_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order := models.Order{UserID: userID}
		var paidAt sql.NullTime
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.EventID, &order.Status,
			&order.Subtotal, &order.PlatformFee, &order.TotalAmount, &order.CreatedAt, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if paidAt.Valid {
			order.PaidAt = &paidAt.Time
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func loadItems(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT oi.id, oi.ticket_type_id, tt.name, oi.quantity, oi.price_per_ticket, oi.subtotal
		 FROM order_items oi
		 JOIN ticket_types tt ON tt.id = oi.ticket_type_id
		 WHERE oi.order_id = $1 ORDER BY oi.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		item := models.OrderItem{OrderID: orderID}
		if err := rows.Scan(&item.ID, &item.TicketTypeID, &item.TicketTypeName,
			&item.Quantity, &item.PricePerTicket, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// publish emits an order event to Kafka. A nil producer (Kafka disabled) and
// publish failures are both tolerated: notifications are best effort, the
// order state is already committed.
func (s *Service) publish(ctx context.Context, order *models.Order, ticketCount int, eventType string) {
	if s.producer == nil {
		return
	}

	var eventTitle string
	if err := s.db.QueryRowContext(ctx,
		"SELECT title FROM events WHERE id = $1", order.EventID,
	).Scan(&eventTitle); err != nil {
		s.logger.Warn("Failed to load event title for order event", zap.Error(err))
	}

	event := models.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		EventID:     order.EventID,
		EventTitle:  eventTitle,
		TotalAmount: order.TotalAmount,
		TicketCount: ticketCount,
		EventType:   eventType,
	}
	if err := kafka.PublishOrderEvent(ctx, s.producer, s.topic, event, s.logger); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("order_number", order.OrderNumber),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
