package payments

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/paymentintent"
	"go.uber.org/zap"

	"ticket-svc/models"
)

// StripeGateway drives Stripe PaymentIntents. All calls run through a
// circuit breaker so checkout degrades fast when Stripe is down instead of
// holding request handlers open.
type StripeGateway struct {
	currency string
	breaker  *Breaker
	logger   *zap.Logger
}

func NewStripeGateway(secretKey, currency string, timeout time.Duration, logger *zap.Logger) *StripeGateway {
	stripe.Key = secretKey
	// Bound every gateway call; a hung Stripe request must not hold a
	// checkout handler open indefinitely.
	stripe.SetHTTPClient(&http.Client{Timeout: timeout})
	return &StripeGateway{
		currency: currency,
		breaker:  NewBreaker(5, 30*time.Second),
		logger:   logger,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, order *models.Order) (*Intent, error) {
	idempotencyKey := uuid.New().String()
	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(order.TotalAmount),
		Currency:     stripe.String(g.currency),
		ReceiptEmail: stripe.String(order.Email),
	}
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata("order_number", order.OrderNumber)

	var pi *stripe.PaymentIntent
	err := g.breaker.Execute(func() error {
		var err error
		pi, err = paymentintent.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	g.logger.Info("Payment intent created",
		zap.String("intent_id", pi.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("amount", order.TotalAmount),
	)
	return fromStripe(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	var pi *stripe.PaymentIntent
	err := g.breaker.Execute(func() error {
		var err error
		pi, err = paymentintent.Get(intentID, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		intent.Status = IntentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		intent.Status = IntentStatusFailed
	default:
		intent.Status = IntentStatusPending
	}
	return intent
}
