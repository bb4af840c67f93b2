package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ticket-svc/middleware"
	"ticket-svc/models"
)

type TicketHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTicketHandler(db *sql.DB, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{db: db, logger: logger}
}

// MyTickets lists the caller's tickets with event context, newest first.
func (h *TicketHandler) MyTickets(c *gin.Context) {
	rows, err := h.db.QueryContext(c.Request.Context(),
		`SELECT t.ticket_number, t.qr_payload, t.status, t.checked_in, t.checked_in_at, t.created_at,
		        tt.name, e.id, e.title, e.venue_name, e.start_date
		 FROM tickets t
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 JOIN events e ON e.id = t.event_id
		 WHERE t.user_id = $1
		 ORDER BY t.created_at DESC`,
		middleware.UserID(c),
	)
	if err != nil {
		h.internalError(c, "Failed to list tickets", err)
		return
	}
	defer rows.Close()

	tickets := []gin.H{}
	for rows.Next() {
		var (
			ticket      models.Ticket
			checkedInAt sql.NullTime
			typeName    string
			eventID     string
			eventTitle  string
			venueName   string
			startDate   sql.NullTime
		)
		if err := rows.Scan(&ticket.TicketNumber, &ticket.QRPayload, &ticket.Status,
			&ticket.CheckedIn, &checkedInAt, &ticket.CreatedAt,
			&typeName, &eventID, &eventTitle, &venueName, &startDate); err != nil {
			h.internalError(c, "Failed to scan ticket", err)
			return
		}

		entry := gin.H{
			"ticket_number": ticket.TicketNumber,
			"qr_payload":    ticket.QRPayload,
			"status":        ticket.Status,
			"checked_in":    ticket.CheckedIn,
			"ticket_type":   typeName,
			"event_id":      eventID,
			"event":         eventTitle,
			"venue":         venueName,
			"created_at":    ticket.CreatedAt,
		}
		if checkedInAt.Valid {
			entry["checked_in_at"] = checkedInAt.Time
		}
		if startDate.Valid {
			entry["event_start"] = startDate.Time
		}
		tickets = append(tickets, entry)
	}
	if err := rows.Err(); err != nil {
		h.internalError(c, "Failed to iterate tickets", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// TicketStatus returns one ticket's state for the owner's wallet view.
func (h *TicketHandler) TicketStatus(c *gin.Context) {
	ticketNumber := c.Param("number")

	var (
		ticket      models.Ticket
		checkedInAt sql.NullTime
	)
	err := h.db.QueryRowContext(c.Request.Context(),
		`SELECT ticket_number, qr_payload, user_id, status, checked_in, checked_in_at
		 FROM tickets WHERE ticket_number = $1`,
		ticketNumber,
	).Scan(&ticket.TicketNumber, &ticket.QRPayload, &ticket.UserID,
		&ticket.Status, &ticket.CheckedIn, &checkedInAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		h.internalError(c, "Failed to load ticket", err)
		return
	}
	if ticket.UserID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Ticket belongs to another user"})
		return
	}

	resp := gin.H{
		"ticket_number": ticket.TicketNumber,
		"qr_payload":    ticket.QRPayload,
		"status":        ticket.Status,
		"checked_in":    ticket.CheckedIn,
	}
	if checkedInAt.Valid {
		resp["checked_in_at"] = checkedInAt.Time
	}
	c.JSON(http.StatusOK, resp)
}

// MyNotifications lists the caller's notifications, newest first.
func (h *TicketHandler) MyNotifications(c *gin.Context) {
	rows, err := h.db.QueryContext(c.Request.Context(),
		`SELECT id, notification_type, title, message, event_id, link, is_read, created_at
		 FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT 50`,
		middleware.UserID(c),
	)
	if err != nil {
		h.internalError(c, "Failed to list notifications", err)
		return
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n := models.Notification{UserID: middleware.UserID(c)}
		var eventID sql.NullString
		if err := rows.Scan(&n.ID, &n.NotificationType, &n.Title, &n.Message,
			&eventID, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			h.internalError(c, "Failed to scan notification", err)
			return
		}
		n.EventID = eventID.String
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		h.internalError(c, "Failed to iterate notifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *TicketHandler) internalError(c *gin.Context, msg string, err error) {
	traceID := middleware.GetTraceID(c.Request.Context())
	h.logger.Error(msg, zap.String("trace_id", traceID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
