package payments

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/webhook"
)

// WebhookEvent is a verified gateway delivery reduced to what the order
// lifecycle needs.
type WebhookEvent struct {
	Type     string
	IntentID string
}

// WebhookVerifier authenticates gateway deliveries against the endpoint's
// signing secret. Unsigned or tampered payloads never reach order state.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, v.secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}

	return &WebhookEvent{Type: string(event.Type), IntentID: pi.ID}, nil
}
