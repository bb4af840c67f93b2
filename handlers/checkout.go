package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ticket-svc/cache"
	"ticket-svc/inventory"
	"ticket-svc/middleware"
	"ticket-svc/models"
	"ticket-svc/orders"
	"ticket-svc/payments"
)

type CheckoutHandler struct {
	orders   *orders.Service
	sessions *cache.SessionStore
	gateway  payments.Gateway
	logger   *zap.Logger
}

func NewCheckoutHandler(orderSvc *orders.Service, sessions *cache.SessionStore, gateway payments.Gateway, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		orders:   orderSvc,
		sessions: sessions,
		gateway:  gateway,
		logger:   logger,
	}
}

// StartCheckout prices the basket and parks it in Redis. Nothing is written
// to Postgres until the buyer proceeds to pay.
func (h *CheckoutHandler) StartCheckout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	quote, err := h.orders.PriceQuote(ctx, req.Selections)
	if err != nil {
		h.inventoryError(c, err)
		return
	}

	session := &cache.CheckoutSession{
		UserID:      middleware.UserID(c),
		EventID:     req.EventID,
		Selections:  req.Selections,
		Email:       req.Email,
		Phone:       req.Phone,
		Subtotal:    quote.Subtotal,
		PlatformFee: quote.PlatformFee,
		Total:       quote.Total,
	}
	if err := h.sessions.Save(ctx, session); err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to save checkout session", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.ID,
		"subtotal":     session.Subtotal,
		"platform_fee": session.PlatformFee,
		"total":        session.Total,
	})
}

// PayCheckout turns a live session into a pending order plus a gateway
// payment intent, and hands the client secret back for the card form.
func (h *CheckoutHandler) PayCheckout(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	session, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found or expired"})
			return
		}
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to load checkout session", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if session.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Checkout session belongs to another user"})
		return
	}

	order, err := h.orders.Create(ctx, userID, &models.CheckoutRequest{
		EventID:    session.EventID,
		Selections: session.Selections,
		Email:      session.Email,
		Phone:      session.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		case errors.Is(err, orders.ErrEventNotPublished):
			c.JSON(http.StatusConflict, gin.H{"error": "Event is not open for sales"})
		default:
			h.inventoryError(c, err)
		}
		return
	}

	intent, err := h.gateway.CreateIntent(ctx, order)
	if err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to create payment intent",
			zap.String("trace_id", traceID),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
		if failErr := h.orders.MarkFailed(ctx, order.ID); failErr != nil {
			h.logger.Error("Failed to mark order failed", zap.Int64("order_id", order.ID), zap.Error(failErr))
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
		return
	}

	if err := h.orders.AttachIntent(ctx, order.ID, intent.ID, "card"); err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to attach payment intent", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// The session is spent; a retry goes through the order, not the basket.
	if err := h.sessions.Delete(ctx, sessionID); err != nil {
		h.logger.Warn("Failed to delete checkout session", zap.String("session_id", sessionID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":      order.ID,
		"order_number":  order.OrderNumber,
		"total":         order.TotalAmount,
		"client_secret": intent.ClientSecret,
	})
}

func (h *CheckoutHandler) inventoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inventory.ErrInsufficientInventory):
		middleware.RecordInventoryRejection()
		c.JSON(http.StatusConflict, gin.H{"error": "Not enough tickets remaining"})
	case errors.Is(err, inventory.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket type not found"})
	case errors.Is(err, inventory.ErrInactiveTicketType):
		c.JSON(http.StatusConflict, gin.H{"error": "Ticket type is not on sale"})
	case errors.Is(err, inventory.ErrOutsideSaleWindow):
		c.JSON(http.StatusConflict, gin.H{"error": "Ticket type is outside its sale window"})
	case errors.Is(err, inventory.ErrQuantityExceedsMax):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity exceeds the per-order limit"})
	case errors.Is(err, inventory.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be positive"})
	default:
		traceID := middleware.GetTraceID(c.Request.Context())
		h.logger.Error("Checkout failed", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
