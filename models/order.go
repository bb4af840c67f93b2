package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a single checkout transaction. Monetary fields are minor currency
// units and satisfy TotalAmount == Subtotal + PlatformFee; they are frozen
// once the order reaches paid.
type Order struct {
	ID              int64       `json:"id"`
	OrderNumber     string      `json:"order_number"`
	UserID          int64       `json:"user_id"`
	EventID         string      `json:"event_id"`
	Status          OrderStatus `json:"status"`
	Subtotal        int64       `json:"subtotal"`
	PlatformFee     int64       `json:"platform_fee"`
	TotalAmount     int64       `json:"total_amount"`
	PaymentMethod   string      `json:"payment_method,omitempty"`
	PaymentIntentID string      `json:"payment_intent_id,omitempty"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	PaidAt          *time.Time  `json:"paid_at,omitempty"`

	Items   []OrderItem `json:"items,omitempty"`
	Tickets []Ticket    `json:"tickets,omitempty"`
}

// OrderItem snapshots the unit price at purchase time; Subtotal is always
// recomputed as Quantity * PricePerTicket, never trusted from input.
type OrderItem struct {
	ID             int64  `json:"id"`
	OrderID        int64  `json:"order_id"`
	TicketTypeID   int64  `json:"ticket_type_id"`
	TicketTypeName string `json:"ticket_type_name,omitempty"`
	Quantity       int    `json:"quantity"`
	PricePerTicket int64  `json:"price_per_ticket"`
	Subtotal       int64  `json:"subtotal"`
}

// Selection is one ticket-type line of a checkout request.
type Selection struct {
	TicketTypeID int64 `json:"ticket_type_id" binding:"required"`
	Quantity     int   `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	EventID    string      `json:"event_id" binding:"required"`
	Selections []Selection `json:"selections" binding:"required,min=1,dive"`
	Email      string      `json:"email" binding:"required,email"`
	Phone      string      `json:"phone"`
}

// OrderEvent is the payload published to the order event stream.
type OrderEvent struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      int64  `json:"user_id"`
	EventID     string `json:"event_id"`
	EventTitle  string `json:"event_title"`
	TotalAmount int64  `json:"total_amount"`
	TicketCount int    `json:"ticket_count"`
	EventType   string `json:"event_type"` // order_paid, order_failed, order_cancelled
}
