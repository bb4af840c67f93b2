package ticketing

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"ticket-svc/models"
)

var csvHeader = []string{
	"Ticket Number", "Attendee Name", "Attendee Email",
	"Ticket Type", "Order Number", "Status",
	"Checked In", "Checked In At", "Purchase Date",
}

const exportTimeLayout = "2006-01-02 03:04 PM"

// ExportCSV streams an event's tickets as CSV. The caller must already be
// authorized as the event's organizer.
func (s *CheckInService) ExportCSV(ctx context.Context, w io.Writer, eventID string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.ticket_number, t.attendee_name, t.attendee_email, tt.name, o.order_number,
		        t.status, t.checked_in, t.checked_in_at, t.created_at
		 FROM tickets t
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 JOIN orders o ON o.id = t.order_id
		 WHERE t.event_id = $1
		 ORDER BY t.created_at DESC`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for rows.Next() {
		var (
			ticketNumber, attendeeName, attendeeEmail string
			ticketType, orderNumber, status           string
			checkedIn                                 bool
			checkedInAt                               sql.NullTime
			createdAt                                 time.Time
		)
		if err := rows.Scan(&ticketNumber, &attendeeName, &attendeeEmail, &ticketType,
			&orderNumber, &status, &checkedIn, &checkedInAt, &createdAt); err != nil {
			return fmt.Errorf("failed to scan ticket row: %w", err)
		}

		checkedInLabel := "No"
		if checkedIn {
			checkedInLabel = "Yes"
		}
		checkedInAtLabel := ""
		if checkedInAt.Valid {
			checkedInAtLabel = checkedInAt.Time.Format(exportTimeLayout)
		}

		record := []string{
			ticketNumber, attendeeName, attendeeEmail,
			ticketType, orderNumber, status,
			checkedInLabel, checkedInAtLabel, createdAt.Format(exportTimeLayout),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate tickets: %w", err)
	}

	writer.Flush()
	return writer.Error()
}

// EventTicketStats summarizes an event's tickets for the organizer
// dashboard.
type EventTicketStats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checked_in"`
	Valid     int `json:"valid"`
	Used      int `json:"used"`
	Cancelled int `json:"cancelled"`
	Expired   int `json:"expired"`
}

// ListForEvent returns an event's tickets with aggregate counts.
func (s *CheckInService) ListForEvent(ctx context.Context, eventID string) ([]CheckInInfo, *EventTicketStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.ticket_number, t.attendee_name, t.attendee_email, t.status, t.checked_in, t.checked_in_at,
		        tt.name, e.title
		 FROM tickets t
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 JOIN events e ON e.id = t.event_id
		 WHERE t.event_id = $1
		 ORDER BY t.created_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list event tickets: %w", err)
	}
	defer rows.Close()

	tickets := []CheckInInfo{}
	stats := &EventTicketStats{}
	for rows.Next() {
		var info CheckInInfo
		var checkedInAt sql.NullTime
		if err := rows.Scan(&info.TicketNumber, &info.AttendeeName, &info.AttendeeEmail,
			&info.Status, &info.CheckedIn, &checkedInAt,
			&info.TicketTypeName, &info.EventTitle); err != nil {
			return nil, nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		if checkedInAt.Valid {
			info.CheckedInAt = &checkedInAt.Time
		}

		stats.Total++
		if info.CheckedIn {
			stats.CheckedIn++
		}
		switch info.Status {
		case models.TicketStatusValid:
			stats.Valid++
		case models.TicketStatusUsed:
			stats.Used++
		case models.TicketStatusCancelled:
			stats.Cancelled++
		case models.TicketStatusExpired:
			stats.Expired++
		}

		tickets = append(tickets, info)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}

	return tickets, stats, nil
}

// OrganizesEvent reports whether userID is the organizer of eventID.
// Organizer capability is an explicit check, not an exception path.
func (s *CheckInService) OrganizesEvent(ctx context.Context, eventID string, userID int64) (bool, error) {
	var organizerID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT organizer_id FROM events WHERE id = $1", eventID,
	).Scan(&organizerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrEventNotFound
		}
		return false, fmt.Errorf("failed to load event organizer: %w", err)
	}
	return organizerID == userID, nil
}
