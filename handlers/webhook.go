package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ticket-svc/middleware"
	"ticket-svc/orders"
	"ticket-svc/payments"
)

const maxWebhookBodyBytes = int64(65536)

type WebhookHandler struct {
	orders   *orders.Service
	verifier *payments.WebhookVerifier
	logger   *zap.Logger
}

func NewWebhookHandler(orderSvc *orders.Service, verifier *payments.WebhookVerifier, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{orders: orderSvc, verifier: verifier, logger: logger}
}

// StripeWebhook is the gateway's server-to-server confirmation channel. It
// races the browser's success callback; MarkPaid's idempotence makes the
// race harmless.
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("Webhook verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "payment_intent.succeeded":
		orderID, err := h.orders.FindIDByIntent(ctx, event.IntentID)
		if err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				// Not ours (or created by another environment); acknowledge so
				// the gateway stops retrying.
				h.logger.Warn("Webhook for unknown payment intent", zap.String("intent_id", event.IntentID))
				c.Status(http.StatusOK)
				return
			}
			h.internalError(c, "Failed to resolve order", err)
			return
		}

		order, transitioned, err := h.orders.MarkPaid(ctx, orderID, event.IntentID)
		if err != nil {
			if errors.Is(err, orders.ErrOrderCancelled) {
				// Retrying will not uncancel the order; acknowledge and leave
				// the refund to support tooling.
				h.logger.Warn("Payment settled for a cancelled order",
					zap.Int64("order_id", orderID), zap.String("intent_id", event.IntentID))
				c.Status(http.StatusOK)
				return
			}
			h.internalError(c, "Failed to complete payment", err)
			return
		}
		if transitioned {
			middleware.RecordOrderPaid(len(order.Tickets))
		}

	case "payment_intent.payment_failed":
		orderID, err := h.orders.FindIDByIntent(ctx, event.IntentID)
		if err == nil {
			if failErr := h.orders.MarkFailed(ctx, orderID); failErr != nil {
				h.logger.Error("Failed to mark order failed",
					zap.Int64("order_id", orderID), zap.Error(failErr))
			}
		}

	default:
		h.logger.Debug("Ignoring webhook event", zap.String("type", event.Type))
	}

	c.Status(http.StatusOK)
}

func (h *WebhookHandler) internalError(c *gin.Context, msg string, err error) {
	traceID := middleware.GetTraceID(c.Request.Context())
	h.logger.Error(msg, zap.String("trace_id", traceID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
