// Package ticketing mints tickets for paid orders and consumes them at the
// door.
package ticketing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ticket-svc/models"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	ticketNumberPrefix = "TKT"
	ticketNumberBytes  = 6
	maxNumberAttempts  = 5
	qrImageSize        = 256
)

var ErrTicketNumberExhausted = errors.New("could not generate a unique ticket number")

// Issuer mints individual tickets. The scannable payload is a pure function
// of the ticket number ("<NAMESPACE>-<ticket_number>"), so the PNG artifact
// can be regenerated at any time; a render failure is logged and the ticket
// is persisted without an artifact path.
type Issuer struct {
	namespace string
	mediaDir  string
	logger    *zap.Logger
}

func NewIssuer(namespace, mediaDir string, logger *zap.Logger) *Issuer {
	return &Issuer{namespace: namespace, mediaDir: mediaDir, logger: logger}
}

// Issue mints one ticket for an order item inside the caller's transaction.
// It is called once per unit of the item's quantity by the paid transition.
func (i *Issuer) Issue(ctx context.Context, tx *sql.Tx, order *models.Order, item *models.OrderItem, attendeeName, attendeeEmail string) (*models.Ticket, error) {
	ticket := &models.Ticket{
		OrderID:       order.ID,
		OrderItemID:   item.ID,
		TicketTypeID:  item.TicketTypeID,
		EventID:       order.EventID,
		UserID:        order.UserID,
		AttendeeName:  attendeeName,
		AttendeeEmail: attendeeEmail,
		Status:        models.TicketStatusValid,
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := newTicketNumber()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ticket number: %w", err)
		}
		payload := i.Payload(number)
		imagePath := i.renderQR(number, payload)

		// ON CONFLICT DO NOTHING keeps the transaction usable when the
		// random number collides; the unique constraint stays the
		// authority on uniqueness.
		err = tx.QueryRowContext(ctx,
			`INSERT INTO tickets (ticket_number, qr_payload, qr_image_path, order_id, order_item_id, ticket_type_id, event_id, user_id, attendee_name, attendee_email, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (ticket_number) DO NOTHING
			 RETURNING id, created_at`,
			number, payload, imagePath, ticket.OrderID, ticket.OrderItemID, ticket.TicketTypeID,
			ticket.EventID, ticket.UserID, ticket.AttendeeName, ticket.AttendeeEmail, ticket.Status,
		).Scan(&ticket.ID, &ticket.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			i.logger.Warn("Ticket number collision, regenerating", zap.String("ticket_number", number))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert ticket: %w", err)
		}

		ticket.TicketNumber = number
		ticket.QRPayload = payload
		ticket.QRImagePath = imagePath
		return ticket, nil
	}

	return nil, ErrTicketNumberExhausted
}

// Payload returns the scannable code payload for a ticket number.
func (i *Issuer) Payload(ticketNumber string) string {
	return i.namespace + "-" + ticketNumber
}

// renderQR writes the 2D barcode PNG and returns its path, or "" when
// rendering fails. Failure is non-fatal: the ticket number and status must
// persist regardless, and the artifact is regenerable from the payload.
func (i *Issuer) renderQR(ticketNumber, payload string) string {
	dir := filepath.Join(i.mediaDir, "qrcodes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		i.logger.Warn("Failed to create QR code directory", zap.Error(err))
		return ""
	}

	path := filepath.Join(dir, ticketNumber+".png")
	if err := qrcode.WriteFile(payload, qrcode.Medium, qrImageSize, path); err != nil {
		i.logger.Warn("Failed to render QR code",
			zap.String("ticket_number", ticketNumber),
			zap.Error(err),
		)
		return ""
	}

	return path
}

func newTicketNumber() (string, error) {
	byt := make([]byte, ticketNumberBytes)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return ticketNumberPrefix + "-" + strings.ToUpper(hex.EncodeToString(byt)), nil
}
