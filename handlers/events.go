package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ticket-svc/middleware"
	"ticket-svc/models"
)

type EventHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewEventHandler(db *sql.DB, logger *zap.Logger) *EventHandler {
	return &EventHandler{db: db, logger: logger}
}

// CreateEvent inserts an event with its ticket types in one transaction.
// total_capacity and remaining_capacity start as the sum of the types'
// quantities.
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.EndDate.After(req.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be after start_date"})
		return
	}

	totalCapacity := 0
	for _, tt := range req.TicketTypes {
		totalCapacity += tt.QuantityAvailable
	}

	ctx := c.Request.Context()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.internalError(c, "Failed to begin transaction", err)
		return
	}
	defer tx.Rollback()

	event := models.Event{
		ID:                uuid.New().String(),
		OrganizerID:       middleware.UserID(c),
		Title:             req.Title,
		Description:       req.Description,
		VenueName:         req.VenueName,
		Location:          req.Location,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Status:            models.EventStatusPublished,
		TotalCapacity:     totalCapacity,
		RemainingCapacity: totalCapacity,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (id, organizer_id, title, description, venue_name, location, start_date, end_date, status, total_capacity, remaining_capacity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		event.ID, event.OrganizerID, event.Title, event.Description, event.VenueName,
		event.Location, event.StartDate, event.EndDate, event.Status,
		event.TotalCapacity, event.RemainingCapacity,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		h.internalError(c, "Failed to create event", err)
		return
	}

	ticketTypes := make([]models.TicketType, 0, len(req.TicketTypes))
	for _, ttReq := range req.TicketTypes {
		tt := models.TicketType{
			EventID:           event.ID,
			Name:              ttReq.Name,
			Price:             ttReq.Price,
			QuantityAvailable: ttReq.QuantityAvailable,
			MaxPerOrder:       ttReq.MaxPerOrder,
			IsActive:          true,
			SaleStart:         ttReq.SaleStart,
			SaleEnd:           ttReq.SaleEnd,
		}
		if tt.MaxPerOrder <= 0 {
			tt.MaxPerOrder = 10
		}
		if tt.SaleStart.IsZero() {
			tt.SaleStart = event.CreatedAt
		}
		if tt.SaleEnd.IsZero() {
			tt.SaleEnd = event.EndDate
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO ticket_types (event_id, name, price, quantity_available, max_per_order, is_active, sale_start, sale_end)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			tt.EventID, tt.Name, tt.Price, tt.QuantityAvailable, tt.MaxPerOrder,
			tt.IsActive, tt.SaleStart, tt.SaleEnd,
		).Scan(&tt.ID)
		if err != nil {
			h.internalError(c, "Failed to create ticket type", err)
			return
		}
		ticketTypes = append(ticketTypes, tt)
	}

	if err := tx.Commit(); err != nil {
		h.internalError(c, "Failed to commit event", err)
		return
	}

	h.logger.Info("Event created",
		zap.String("event_id", event.ID),
		zap.Int64("organizer_id", event.OrganizerID),
		zap.Int("total_capacity", totalCapacity),
	)
	c.JSON(http.StatusCreated, gin.H{"event": event, "ticket_types": ticketTypes})
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID := c.Param("id")
	ctx := c.Request.Context()

	var event models.Event
	err := h.db.QueryRowContext(ctx,
		`SELECT id, organizer_id, title, description, venue_name, location, start_date, end_date,
		        status, total_capacity, remaining_capacity, created_at, updated_at
		 FROM events WHERE id = $1`,
		eventID,
	).Scan(&event.ID, &event.OrganizerID, &event.Title, &event.Description, &event.VenueName,
		&event.Location, &event.StartDate, &event.EndDate, &event.Status,
		&event.TotalCapacity, &event.RemainingCapacity, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		h.internalError(c, "Failed to load event", err)
		return
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, name, price, quantity_available, quantity_sold, max_per_order, is_active, sale_start, sale_end
		 FROM ticket_types WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		h.internalError(c, "Failed to load ticket types", err)
		return
	}
	defer rows.Close()

	ticketTypes := []gin.H{}
	for rows.Next() {
		tt := models.TicketType{EventID: eventID}
		if err := rows.Scan(&tt.ID, &tt.Name, &tt.Price, &tt.QuantityAvailable, &tt.QuantitySold,
			&tt.MaxPerOrder, &tt.IsActive, &tt.SaleStart, &tt.SaleEnd); err != nil {
			h.internalError(c, "Failed to scan ticket type", err)
			return
		}
		ticketTypes = append(ticketTypes, gin.H{
			"id":            tt.ID,
			"name":          tt.Name,
			"price":         tt.Price,
			"remaining":     tt.Remaining(),
			"max_per_order": tt.MaxPerOrder,
			"is_active":     tt.IsActive,
			"sale_start":    tt.SaleStart,
			"sale_end":      tt.SaleEnd,
		})
	}
	if err := rows.Err(); err != nil {
		h.internalError(c, "Failed to iterate ticket types", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event, "ticket_types": ticketTypes})
}

func (h *EventHandler) ListEvents(c *gin.Context) {
	rows, err := h.db.QueryContext(c.Request.Context(),
		`SELECT id, organizer_id, title, description, venue_name, location, start_date, end_date,
		        status, total_capacity, remaining_capacity, created_at, updated_at
		 FROM events WHERE status = $1 AND end_date > NOW() ORDER BY start_date`,
		models.EventStatusPublished,
	)
	if err != nil {
		h.internalError(c, "Failed to list events", err)
		return
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.OrganizerID, &event.Title, &event.Description,
			&event.VenueName, &event.Location, &event.StartDate, &event.EndDate, &event.Status,
			&event.TotalCapacity, &event.RemainingCapacity, &event.CreatedAt, &event.UpdatedAt); err != nil {
			h.internalError(c, "Failed to scan event", err)
			return
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		h.internalError(c, "Failed to iterate events", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *EventHandler) internalError(c *gin.Context, msg string, err error) {
	traceID := middleware.GetTraceID(c.Request.Context())
	h.logger.Error(msg, zap.String("trace_id", traceID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
