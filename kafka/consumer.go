package kafka

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"ticket-svc/models"
)

func InitConsumer(broker string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer([]string{broker}, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartConsumer turns order events into in-app notifications and simulated
// emails. It blocks; run it in a goroutine.
func StartConsumer(consumer sarama.Consumer, topic string, db *sql.DB, logger *zap.Logger) error {
	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	logger.Info("Kafka consumer started", zap.String("topic", topic))

	for {
		select {
		case message := <-partitionConsumer.Messages():
			if err := handleMessageWithRetry(message, db, logger, 3); err != nil {
				logger.Error("Failed to handle message after retries", zap.Error(err))
			}
		case err := <-partitionConsumer.Errors():
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessageWithRetry(message *sarama.ConsumerMessage, db *sql.DB, logger *zap.Logger, maxRetries int) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := handleMessage(message, db, logger)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxRetries {
			backoff := time.Duration(attempt) * time.Second
			logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

func handleMessage(message *sarama.ConsumerMessage, db *sql.DB, logger *zap.Logger) error {
	// Extract trace context from Kafka message headers
	var propagator propagation.TextMapPropagator = otel.GetTextMapPropagator()
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx := propagator.Extract(context.Background(), carrier)

	tracer := otel.Tracer("ticket-svc")
	ctx, span := tracer.Start(ctx, "ProcessOrderNotification")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.EventType == "" {
		return fmt.Errorf("missing event_type in event")
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.Int64("order.id", event.OrderID),
	)

	var notification models.Notification
	switch event.EventType {
	case "order_paid":
		notification = models.Notification{
			NotificationType: models.NotificationTicketPurchased,
			Title:            "Tickets confirmed",
			Message: fmt.Sprintf("Your %d ticket(s) for %s are confirmed. Order %s.",
				event.TicketCount, event.EventTitle, event.OrderNumber),
			Link: fmt.Sprintf("/orders/%d", event.OrderID),
		}
	case "order_cancelled":
		notification = models.Notification{
			NotificationType: models.NotificationOrderCancelled,
			Title:            "Order cancelled",
			Message:          fmt.Sprintf("Your order %s for %s was cancelled.", event.OrderNumber, event.EventTitle),
		}
	case "order_failed":
		notification = models.Notification{
			NotificationType: models.NotificationPaymentFailed,
			Title:            "Payment failed",
			Message:          fmt.Sprintf("Payment for order %s failed. Please try again or contact support.", event.OrderNumber),
		}
	default:
		logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}

	notification.ID = uuid.New().String()
	notification.UserID = event.UserID
	notification.EventID = event.EventID

	if _, err := db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, notification_type, title, message, event_id, link)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		notification.ID, notification.UserID, notification.NotificationType,
		notification.Title, notification.Message, nullableString(notification.EventID), notification.Link,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to store notification: %w", err)
	}

	logger.Info("Notification stored",
		zap.String("event_type", event.EventType),
		zap.Int64("user_id", event.UserID),
		zap.String("order_number", event.OrderNumber),
	)

	// Simulate email delivery; the in-app notification is the durable copy.
	fmt.Printf("[EMAIL] To: user_%d\n", event.UserID)
	fmt.Printf("[EMAIL] Subject: %s\n", notification.Title)
	fmt.Printf("[EMAIL] Body: %s\n\n", notification.Message)

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {
	// Not needed for extraction
}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
