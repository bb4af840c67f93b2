package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ticket-svc/middleware"
	"ticket-svc/ticketing"
)

type CheckInHandler struct {
	checkin *ticketing.CheckInService
	logger  *zap.Logger
}

func NewCheckInHandler(checkin *ticketing.CheckInService, logger *zap.Logger) *CheckInHandler {
	return &CheckInHandler{checkin: checkin, logger: logger}
}

type checkInRequest struct {
	TicketNumber string `json:"ticket_number" binding:"required"`
}

// CheckInTicket is the door scanner endpoint. Only the event's organizer can
// consume its tickets.
func (h *CheckInHandler) CheckInTicket(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "ticket_number is required"})
		return
	}

	info, err := h.checkin.CheckIn(c.Request.Context(), req.TicketNumber, middleware.UserID(c))
	switch {
	case err == nil:
		middleware.RecordCheckIn("success")
		c.JSON(http.StatusOK, gin.H{"success": true, "ticket": info})

	case errors.Is(err, ticketing.ErrTicketNotFound):
		middleware.RecordCheckIn("not_found")
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Ticket not found"})

	case errors.Is(err, ticketing.ErrNotEventOrganizer):
		middleware.RecordCheckIn("forbidden")
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "You do not organize this event"})

	case errors.Is(err, ticketing.ErrAlreadyCheckedIn):
		middleware.RecordCheckIn("duplicate")
		msg := "Ticket already checked in"
		if info != nil && info.CheckedInAt != nil {
			msg = fmt.Sprintf("Ticket already checked in at %s", info.CheckedInAt.Format("2006-01-02 03:04 PM"))
		}
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": msg, "ticket": info})

	case errors.Is(err, ticketing.ErrInvalidTicketStatus):
		middleware.RecordCheckIn("invalid_status")
		msg := "Ticket is not valid for entry"
		if info != nil {
			msg = fmt.Sprintf("Ticket is %s and not valid for entry", info.Status)
		}
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": msg, "ticket": info})

	default:
		traceID := middleware.GetTraceID(c.Request.Context())
		h.logger.Error("Check-in failed", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
	}
}

// EventTickets lists an event's tickets with check-in stats for the
// organizer dashboard.
func (h *CheckInHandler) EventTickets(c *gin.Context) {
	eventID := c.Param("id")
	ctx := c.Request.Context()

	if !h.requireOrganizerOf(c, eventID) {
		return
	}

	tickets, stats, err := h.checkin.ListForEvent(ctx, eventID)
	if err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to list event tickets", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "stats": stats})
}

// ExportTicketsCSV streams the event's attendee list as a CSV download.
func (h *CheckInHandler) ExportTicketsCSV(c *gin.Context) {
	eventID := c.Param("id")
	ctx := c.Request.Context()

	if !h.requireOrganizerOf(c, eventID) {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=tickets-%s.csv", eventID))

	if err := h.checkin.ExportCSV(ctx, c.Writer, eventID); err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to export tickets", zap.String("trace_id", traceID), zap.Error(err))
	}
}

func (h *CheckInHandler) requireOrganizerOf(c *gin.Context, eventID string) bool {
	ok, err := h.checkin.OrganizesEvent(c.Request.Context(), eventID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, ticketing.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return false
		}
		traceID := middleware.GetTraceID(c.Request.Context())
		h.logger.Error("Failed to check event ownership", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not organize this event"})
		return false
	}
	return true
}
