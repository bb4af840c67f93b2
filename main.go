package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-svc/cache"
	"ticket-svc/config"
	"ticket-svc/database"
	"ticket-svc/handlers"
	"ticket-svc/inventory"
	"ticket-svc/kafka"
	"ticket-svc/middleware"
	"ticket-svc/orders"
	"ticket-svc/payments"
	"ticket-svc/ticketing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis for checkout sessions
	rdb, err := cache.InitRedis(cfg.RedisHost+":"+cfg.RedisPort, cfg.RedisPassword, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()
	sessions := cache.NewSessionStore(rdb, cfg.CheckoutSessionTTL)

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg.KafkaBroker, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize Kafka consumer
	consumer, err := kafka.InitConsumer(cfg.KafkaBroker, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	// Start Kafka consumer in background
	go func() {
		if err := kafka.StartConsumer(consumer, cfg.KafkaTopic, db, logger); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("ticket-svc", cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Domain services
	ledger := inventory.NewLedger(db, logger)
	issuer := ticketing.NewIssuer(cfg.QRNamespace, cfg.MediaDir, logger)
	orderSvc := orders.NewService(db, ledger, issuer, producer, cfg.KafkaTopic, cfg.CommissionRate, logger)
	checkinSvc := ticketing.NewCheckInService(db, logger)
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency, cfg.GatewayTimeout, logger)
	verifier := payments.NewWebhookVerifier(cfg.StripeWebhookSecret)

	// Background sweep: expire still-valid tickets of ended events.
	expiryCtx, stopExpiry := context.WithCancel(context.Background())
	defer stopExpiry()
	go func() {
		ticker := time.NewTicker(cfg.TicketExpiryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-expiryCtx.Done():
				return
			case <-ticker.C:
				expired, err := checkinSvc.ExpireEnded(expiryCtx)
				if err != nil {
					logger.Error("Ticket expiry sweep failed", zap.Error(err))
				} else if expired > 0 {
					logger.Info("Expired tickets for ended events", zap.Int64("count", expired))
				}
			}
		}
	}()

	// Setup REST API with Gin
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("ticket-svc"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	authHandler := handlers.NewAuthHandler(db, []byte(cfg.JWTSecret), logger)
	eventHandler := handlers.NewEventHandler(db, logger)
	checkoutHandler := handlers.NewCheckoutHandler(orderSvc, sessions, gateway, logger)
	orderHandler := handlers.NewOrderHandler(orderSvc, gateway, logger)
	webhookHandler := handlers.NewWebhookHandler(orderSvc, verifier, logger)
	ticketHandler := handlers.NewTicketHandler(db, logger)
	checkinHandler := handlers.NewCheckInHandler(checkinSvc, logger)

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	router.GET("/events", eventHandler.ListEvents)
	router.GET("/events/:id", eventHandler.GetEvent)

	router.POST("/webhooks/stripe", webhookHandler.StripeWebhook)

	authed := router.Group("/", middleware.AuthRequired([]byte(cfg.JWTSecret)))
	{
		authed.POST("/checkout", checkoutHandler.StartCheckout)
		authed.POST("/checkout/:id/pay", checkoutHandler.PayCheckout)
		authed.GET("/payments/success", orderHandler.PaymentSuccess)

		authed.GET("/orders", orderHandler.MyOrders)
		authed.GET("/orders/:id", orderHandler.GetOrder)
		authed.POST("/orders/:id/cancel", orderHandler.CancelOrder)

		authed.GET("/tickets", ticketHandler.MyTickets)
		authed.GET("/tickets/:number", ticketHandler.TicketStatus)
		authed.GET("/notifications", ticketHandler.MyNotifications)
	}

	organizer := router.Group("/organizer", middleware.AuthRequired([]byte(cfg.JWTSecret)), middleware.RequireOrganizer())
	{
		organizer.POST("/events", eventHandler.CreateEvent)
		organizer.POST("/checkin", checkinHandler.CheckInTicket)
		organizer.GET("/events/:id/tickets", checkinHandler.EventTickets)
		organizer.GET("/events/:id/tickets/export", checkinHandler.ExportTicketsCSV)
	}

	// Start REST server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Ticket service started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
