package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ticket-svc/inventory"
	"ticket-svc/middleware"
	"ticket-svc/orders"
	"ticket-svc/payments"
	"ticket-svc/ticketing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

func setupOrderHandlerTest(t *testing.T, gateway *fakeGateway) (sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	ledger := inventory.NewLedger(db, logger)
	issuer := ticketing.NewIssuer("CHEERS", t.TempDir(), logger)
	orderSvc := orders.NewService(db, ledger, issuer, nil, "order_events", decimal.RequireFromString("0.02"), logger)

	handler := NewOrderHandler(orderSvc, gateway, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, int64(9))
	})
	router.GET("/payments/success", handler.PaymentSuccess)

	return mock, router
}

func TestPaymentSuccess_CancelledOrderIsNotResurrected(t *testing.T) {
	gateway := &fakeGateway{intent: &payments.Intent{ID: "pi_123", Status: payments.IntentStatusSucceeded}}
	mock, router := setupOrderHandlerTest(t, gateway)

	mock.ExpectQuery("SELECT id FROM orders WHERE payment_intent_id").
		WithArgs("pi_123").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_number, user_id, event_id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"order_number", "user_id", "event_id", "status", "subtotal",
			"platform_fee", "total_amount", "email", "created_at",
		}).AddRow("ORD-AABBCCDD00", int64(9), "ev-1", "cancelled", int64(100000),
			int64(2000), int64(102000), "jane@example.com", time.Now()))
	mock.ExpectRollback()

	req := httptest.NewRequest("GET", "/payments/success?payment_intent=pi_123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "refund") {
		t.Errorf("Expected a refund-required message, got %s", w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentSuccess_RejectsUnsettledIntent(t *testing.T) {
	gateway := &fakeGateway{intent: &payments.Intent{ID: "pi_123", Status: payments.IntentStatusPending}}
	_, router := setupOrderHandlerTest(t, gateway)

	req := httptest.NewRequest("GET", "/payments/success?payment_intent=pi_123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
}
