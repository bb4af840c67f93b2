package models

import "time"

type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusExpired   TicketStatus = "expired"
)

// Ticket is one paid seat. It moves valid -> used exactly once; cancelled and
// expired are terminal.
type Ticket struct {
	ID            int64        `json:"id"`
	TicketNumber  string       `json:"ticket_number"`
	QRPayload     string       `json:"qr_payload"`
	QRImagePath   string       `json:"qr_image_path,omitempty"`
	OrderID       int64        `json:"order_id"`
	OrderItemID   int64        `json:"order_item_id"`
	TicketTypeID  int64        `json:"ticket_type_id"`
	EventID       string       `json:"event_id"`
	UserID        int64        `json:"user_id"`
	AttendeeName  string       `json:"attendee_name"`
	AttendeeEmail string       `json:"attendee_email"`
	Status        TicketStatus `json:"status"`
	CheckedIn     bool         `json:"checked_in"`
	CheckedInAt   *time.Time   `json:"checked_in_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
