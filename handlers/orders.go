package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ticket-svc/middleware"
	"ticket-svc/orders"
	"ticket-svc/payments"
)

type OrderHandler struct {
	orders  *orders.Service
	gateway payments.Gateway
	logger  *zap.Logger
}

func NewOrderHandler(orderSvc *orders.Service, gateway payments.Gateway, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orderSvc, gateway: gateway, logger: logger}
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		h.internalError(c, "Failed to load order", err)
		return
	}
	if order.UserID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Order belongs to another user"})
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) MyOrders(c *gin.Context) {
	list, err := h.orders.ListByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.internalError(c, "Failed to list orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), orderID, middleware.UserID(c))
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, orders.ErrNotOrderOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "Order belongs to another user"})
		case errors.Is(err, orders.ErrAlreadyCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": "Order is already cancelled"})
		case errors.Is(err, orders.ErrCannotCancelPaidOrder):
			c.JSON(http.StatusConflict, gin.H{"error": "Paid orders cannot be cancelled, request a refund"})
		default:
			h.internalError(c, "Failed to cancel order", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_number": order.OrderNumber,
		"status":       order.Status,
	})
}

// PaymentSuccess is the browser's return leg after the card form. The intent
// state is re-read from the gateway; the client's word alone never flips an
// order to paid.
func (h *OrderHandler) PaymentSuccess(c *gin.Context) {
	intentID := c.Query("payment_intent")
	if intentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_intent is required"})
		return
	}

	ctx := c.Request.Context()
	intent, err := h.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		traceID := middleware.GetTraceID(ctx)
		h.logger.Error("Failed to retrieve payment intent",
			zap.String("trace_id", traceID),
			zap.String("intent_id", intentID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
		return
	}
	if intent.Status != payments.IntentStatusSucceeded {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment has not succeeded", "status": intent.Status})
		return
	}

	orderID, err := h.orders.FindIDByIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found for payment"})
			return
		}
		h.internalError(c, "Failed to resolve order", err)
		return
	}

	order, transitioned, err := h.orders.MarkPaid(ctx, orderID, intentID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderCancelled) {
			c.JSON(http.StatusConflict, gin.H{"error": "Order was cancelled before payment completed, a refund is required"})
			return
		}
		h.internalError(c, "Failed to complete payment", err)
		return
	}
	if transitioned {
		middleware.RecordOrderPaid(len(order.Tickets))
	}

	c.JSON(http.StatusOK, gin.H{
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"tickets":      order.Tickets,
	})
}

func (h *OrderHandler) internalError(c *gin.Context, msg string, err error) {
	traceID := middleware.GetTraceID(c.Request.Context())
	h.logger.Error(msg, zap.String("trace_id", traceID), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
