package database

import (
	"database/sql"
	"fmt"

	"ticket-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established")
	return db, nil
}

// The UNIQUE constraints on order_number and ticket_number are load-bearing:
// number generation retries against them, and issuance relies on them to
// guarantee global uniqueness under concurrency.
func createTables(db *sql.DB) error {
	createTableQueries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			is_organizer BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			organizer_id INTEGER NOT NULL REFERENCES users(id),
			title VARCHAR(200) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			venue_name VARCHAR(200) NOT NULL,
			location VARCHAR(300) NOT NULL DEFAULT '',
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'published',
			total_capacity INTEGER NOT NULL DEFAULT 0,
			remaining_capacity INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS ticket_types (
			id SERIAL PRIMARY KEY,
			event_id UUID NOT NULL REFERENCES events(id),
			name VARCHAR(100) NOT NULL,
			price BIGINT NOT NULL,
			quantity_available INTEGER NOT NULL,
			quantity_sold INTEGER NOT NULL DEFAULT 0,
			max_per_order INTEGER NOT NULL DEFAULT 10,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			sale_start TIMESTAMPTZ NOT NULL,
			sale_end TIMESTAMPTZ NOT NULL,
			CONSTRAINT quantity_sold_within_capacity
				CHECK (quantity_sold >= 0 AND quantity_sold <= quantity_available)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_number VARCHAR(32) UNIQUE NOT NULL,
			user_id INTEGER NOT NULL REFERENCES users(id),
			event_id UUID NOT NULL REFERENCES events(id),
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			subtotal BIGINT NOT NULL,
			platform_fee BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			payment_method VARCHAR(50) NOT NULL DEFAULT '',
			payment_intent_id VARCHAR(255) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL,
			phone VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			paid_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id INTEGER NOT NULL REFERENCES orders(id),
			ticket_type_id INTEGER NOT NULL REFERENCES ticket_types(id),
			quantity INTEGER NOT NULL,
			price_per_ticket BIGINT NOT NULL,
			subtotal BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id SERIAL PRIMARY KEY,
			ticket_number VARCHAR(32) UNIQUE NOT NULL,
			qr_payload VARCHAR(64) NOT NULL,
			qr_image_path VARCHAR(255) NOT NULL DEFAULT '',
			order_id INTEGER NOT NULL REFERENCES orders(id),
			order_item_id INTEGER NOT NULL REFERENCES order_items(id),
			ticket_type_id INTEGER NOT NULL REFERENCES ticket_types(id),
			event_id UUID NOT NULL REFERENCES events(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			attendee_name VARCHAR(255) NOT NULL DEFAULT '',
			attendee_email VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'valid',
			checked_in BOOLEAN NOT NULL DEFAULT FALSE,
			checked_in_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			notification_type VARCHAR(50) NOT NULL,
			title VARCHAR(200) NOT NULL,
			message TEXT NOT NULL,
			event_id UUID,
			link VARCHAR(255) NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_event ON tickets(event_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_order ON tickets(order_id);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_intent ON orders(payment_intent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_types_event ON ticket_types(event_id);`,
	}

	for _, query := range createTableQueries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
