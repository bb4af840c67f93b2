package models

import "time"

type NotificationType string

const (
	NotificationTicketPurchased NotificationType = "ticket_purchased"
	NotificationOrderCancelled  NotificationType = "order_cancelled"
	NotificationPaymentFailed   NotificationType = "payment_failed"
)

type Notification struct {
	ID               string           `json:"id"`
	UserID           int64            `json:"user_id"`
	NotificationType NotificationType `json:"notification_type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	EventID          string           `json:"event_id,omitempty"`
	Link             string           `json:"link,omitempty"`
	IsRead           bool             `json:"is_read"`
	CreatedAt        time.Time        `json:"created_at"`
}
