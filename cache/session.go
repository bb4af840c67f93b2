// Package cache holds short-lived checkout state in Redis. A session is the
// typed handoff between quoting and paying; it expires on its own, so an
// abandoned checkout needs no cleanup job.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ticket-svc/models"
)

var ErrSessionNotFound = errors.New("checkout session not found or expired")

// CheckoutSession freezes a priced basket between the quote and the payment
// call. Amounts are minor currency units; Total == Subtotal + PlatformFee.
type CheckoutSession struct {
	ID          string             `json:"id"`
	UserID      int64              `json:"user_id"`
	EventID     string             `json:"event_id"`
	Selections  []models.Selection `json:"selections"`
	Email       string             `json:"email"`
	Phone       string             `json:"phone,omitempty"`
	Subtotal    int64              `json:"subtotal"`
	PlatformFee int64              `json:"platform_fee"`
	Total       int64              `json:"total"`
	CreatedAt   time.Time          `json:"created_at"`
}

type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func InitRedis(addr, password string, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", addr))
	return rdb, nil
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return "checkout:" + id
}

// Save assigns the session an ID and writes it with the store's TTL.
func (s *SessionStore) Save(ctx context.Context, session *CheckoutSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store checkout session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*CheckoutSession, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}

	var session CheckoutSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkout session: %w", err)
	}
	return nil
}
