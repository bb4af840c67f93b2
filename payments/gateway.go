// Package payments adapts the card gateway behind a small interface so the
// order lifecycle never depends on gateway types.
package payments

import (
	"context"

	"ticket-svc/models"
)

// IntentStatus mirrors the gateway's settlement states we act on.
type IntentStatus string

const (
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusFailed    IntentStatus = "failed"
)

// Intent is the gateway-side handle for one order's payment. Amount is in
// minor currency units and must equal the order's TotalAmount.
type Intent struct {
	ID           string       `json:"id"`
	ClientSecret string       `json:"client_secret"`
	Status       IntentStatus `json:"status"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
}

type Gateway interface {
	// CreateIntent opens a payment for the order's full total. The call is
	// idempotent on the gateway side via a per-call idempotency key.
	CreateIntent(ctx context.Context, order *models.Order) (*Intent, error)

	// RetrieveIntent re-reads an intent's settled state from the gateway.
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
}
