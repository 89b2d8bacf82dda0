// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Required variables are
// enforced by must(); the remaining fields fall back to defaults.
type Config struct {
	Env          string // application environment (dev/test/prod)
	Port         string // HTTP port to listen on
	DBUser       string
	DBPass       string // may be empty
	DBHost       string
	DBPort       string
	DBName       string
	DBLockWait   time.Duration // innodb_lock_wait_timeout for row locks
	JWTSecret    string
	AccessTTLMin int
	BcryptCost   int

	LogLevel  string
	LogFormat string

	// Location is the civil timezone used to decide what "today" is.
	Location *time.Location

	CheckoutLockTTL      time.Duration
	PaymentCurrency      string
	PaymentWebhookSecret string
	ReceiptSigningSecret string

	RabbitURL              string
	PublishBookingEvents   bool
	BookingConsumerEnabled bool
}

// Load reads configuration values from environment variables and returns a
// Config. Missing required values cause the program to exit.
func Load() Config {
	cfg := Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		DBLockWait:   envDur("DB_LOCK_WAIT_TIMEOUT", 5*time.Second),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		CheckoutLockTTL:      envDur("CHECKOUT_LOCK_TTL", 10*time.Second),
		PaymentCurrency:      envStr("PAYMENT_CURRENCY", "eur"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		ReceiptSigningSecret: os.Getenv("RECEIPT_SIGNING_SECRET"),

		RabbitURL:              envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		PublishBookingEvents:   envBool("PUBLISH_BOOKING_EVENTS", true),
		BookingConsumerEnabled: envBool("BOOKING_CONSUMER_ENABLED", false),
	}
	cfg.Location = loadLocation(envStr("APP_TIMEZONE", "Europe/Ljubljana"))
	if cfg.ReceiptSigningSecret == "" {
		cfg.ReceiptSigningSecret = cfg.JWTSecret
	}
	return cfg
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("unknown APP_TIMEZONE %q, using UTC", name)
		return time.UTC
	}
	return loc
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
