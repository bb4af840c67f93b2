package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config carries every runtime setting the service needs. It is loaded once
// in main and handed to constructors explicitly; nothing reads the
// environment after startup.
type Config struct {
	// Server
	Port        string
	Environment string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (checkout sessions)
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	CheckoutSessionTTL time.Duration

	// Kafka
	KafkaBroker string
	KafkaTopic  string

	// Auth
	JWTSecret string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	GatewayTimeout      time.Duration

	// Marketplace
	CommissionRate decimal.Decimal
	Currency       string
	QRNamespace    string
	MediaDir       string

	// Background jobs
	TicketExpiryInterval time.Duration

	// Tracing
	JaegerEndpoint string
}

func Load() *Config {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "ticketdb"),

		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CheckoutSessionTTL: getEnvAsDuration("CHECKOUT_SESSION_TTL", "15m"),

		KafkaBroker: getEnv("KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "order_events"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-production"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		GatewayTimeout:      getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),

		CommissionRate: getEnvAsDecimal("COMMISSION_RATE", "0.02"),
		Currency:       getEnv("CURRENCY", "ugx"),
		QRNamespace:    getEnv("QR_NAMESPACE", "CHEERS"),
		MediaDir:       getEnv("MEDIA_DIR", "media"),

		TicketExpiryInterval: getEnvAsDuration("TICKET_EXPIRY_INTERVAL", "1h"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if duration, err := time.ParseDuration(getEnv(key, defaultValue)); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	if value, err := decimal.NewFromString(getEnv(key, defaultValue)); err == nil {
		return value
	}
	value, _ := decimal.NewFromString(defaultValue)
	return value
}
