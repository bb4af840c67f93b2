package models

import "time"

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

type Event struct {
	ID                string      `json:"id"`
	OrganizerID       int64       `json:"organizer_id"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	VenueName         string      `json:"venue_name"`
	Location          string      `json:"location"`
	StartDate         time.Time   `json:"start_date"`
	EndDate           time.Time   `json:"end_date"`
	Status            EventStatus `json:"status"`
	TotalCapacity     int         `json:"total_capacity"`
	RemainingCapacity int         `json:"remaining_capacity"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// TicketType is a priced admission category with its own finite capacity.
// Invariant: 0 <= QuantitySold <= QuantityAvailable, enforced both by a
// CHECK constraint and by the inventory ledger's compare-and-increment.
type TicketType struct {
	ID                int64     `json:"id"`
	EventID           string    `json:"event_id"`
	Name              string    `json:"name"`
	Price             int64     `json:"price"` // minor currency units
	QuantityAvailable int       `json:"quantity_available"`
	QuantitySold      int       `json:"quantity_sold"`
	MaxPerOrder       int       `json:"max_per_order"`
	IsActive          bool      `json:"is_active"`
	SaleStart         time.Time `json:"sale_start"`
	SaleEnd           time.Time `json:"sale_end"`
}

func (tt *TicketType) Remaining() int {
	return tt.QuantityAvailable - tt.QuantitySold
}

type CreateEventRequest struct {
	Title       string                    `json:"title" binding:"required"`
	Description string                    `json:"description"`
	VenueName   string                    `json:"venue_name" binding:"required"`
	Location    string                    `json:"location"`
	StartDate   time.Time                 `json:"start_date" binding:"required"`
	EndDate     time.Time                 `json:"end_date" binding:"required"`
	TicketTypes []CreateTicketTypeRequest `json:"ticket_types" binding:"required,min=1,dive"`
}

type CreateTicketTypeRequest struct {
	Name              string    `json:"name" binding:"required"`
	Price             int64     `json:"price" binding:"required,gt=0"`
	QuantityAvailable int       `json:"quantity_available" binding:"required,gt=0"`
	MaxPerOrder       int       `json:"max_per_order"`
	SaleStart         time.Time `json:"sale_start"`
	SaleEnd           time.Time `json:"sale_end"`
}
