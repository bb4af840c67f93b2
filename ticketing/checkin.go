package ticketing

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
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrNotEventOrganizer   = errors.New("requester does not organize this event")
	ErrAlreadyCheckedIn    = errors.New("ticket already checked in")
	ErrInvalidTicketStatus = errors.New("ticket status does not allow check-in")
)

// CheckInInfo describes the ticket presented at the door. It accompanies
// both a successful check-in and an ErrAlreadyCheckedIn result, in which case
// CheckedInAt is the original timestamp.
type CheckInInfo struct {
	TicketNumber   string              `json:"ticket_number"`
	AttendeeName   string              `json:"attendee"`
	AttendeeEmail  string              `json:"attendee_email,omitempty"`
	TicketTypeName string              `json:"ticket_type"`
	EventTitle     string              `json:"event"`
	Status         models.TicketStatus `json:"status"`
	CheckedIn      bool                `json:"checked_in"`
	CheckedInAt    *time.Time          `json:"checked_in_at,omitempty"`
}

type CheckInService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCheckInService(db *sql.DB, logger *zap.Logger) *CheckInService {
	return &CheckInService{db: db, logger: logger}
}

// CheckIn consumes a ticket exactly once. The ticket row is locked for the
// duration of the transaction, so a racing cancellation or second scan
// observes the committed state and fails its own status check.
func (s *CheckInService) CheckIn(ctx context.Context, ticketNumber string, organizerUserID int64) (*CheckInInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		ticketID    int64
		info        CheckInInfo
		organizerID int64
		checkedInAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT t.id, t.ticket_number, t.attendee_name, t.attendee_email, t.status, t.checked_in, t.checked_in_at,
		        tt.name, e.title, e.organizer_id
		 FROM tickets t
		 JOIN ticket_types tt ON tt.id = t.ticket_type_id
		 JOIN events e ON e.id = t.event_id
		 WHERE t.ticket_number = $1
		 FOR UPDATE OF t`,
		ticketNumber,
	).Scan(&ticketID, &info.TicketNumber, &info.AttendeeName, &info.AttendeeEmail,
		&info.Status, &info.CheckedIn, &checkedInAt,
		&info.TicketTypeName, &info.EventTitle, &organizerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	if checkedInAt.Valid {
		info.CheckedInAt = &checkedInAt.Time
	}

	if organizerID != organizerUserID {
		return nil, ErrNotEventOrganizer
	}

	// A second scan is informational: report the original timestamp, touch
	// nothing.
	if info.CheckedIn {
		return &info, ErrAlreadyCheckedIn
	}

	if info.Status != models.TicketStatusValid {
		return &info, ErrInvalidTicketStatus
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE tickets SET status = $1, checked_in = TRUE, checked_in_at = $2 WHERE id = $3",
		models.TicketStatusUsed, now, ticketID,
	); err != nil {
		return nil, fmt.Errorf("failed to check in ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit check-in: %w", err)
	}

	info.Status = models.TicketStatusUsed
	info.CheckedIn = true
	info.CheckedInAt = &now

	s.logger.Info("Ticket checked in",
		zap.String("ticket_number", ticketNumber),
		zap.Int64("organizer_id", organizerUserID),
	)
	return &info, nil
}

// ExpireForEvent marks still-valid tickets of an already-ended event as
// expired. Used and cancelled tickets are left untouched; expired is
// terminal.
func (s *CheckInService) ExpireForEvent(ctx context.Context, eventID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = $1
		 FROM events e
		 WHERE tickets.event_id = e.id AND e.id = $2 AND e.end_date < NOW() AND tickets.status = $3`,
		models.TicketStatusExpired, eventID, models.TicketStatusValid,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tickets: %w", err)
	}
	return result.RowsAffected()
}

// ExpireEnded sweeps every ended event in one pass; run periodically from
// main.
func (s *CheckInService) ExpireEnded(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = $1
		 FROM events e
		 WHERE tickets.event_id = e.id AND e.end_date < NOW() AND tickets.status = $2`,
		models.TicketStatusExpired, models.TicketStatusValid,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tickets: %w", err)
	}
	return result.RowsAffected()
}
