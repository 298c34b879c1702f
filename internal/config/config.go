package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	// Document store
	StoreBackend   string // memory, dynamodb or postgres
	DatabaseURL    string
	DocumentsTable string
	DocumentsIndex string // GSI on "collection"; empty scans the table
	TxMaxAttempts  int
	TxBaseDelay    time.Duration
	TxMaxDelay     time.Duration
	TxTimeout      time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Appointment events
	EventsQueueURL string
	OutboxInterval time.Duration
	OutboxBatch    int

	// Booking emails
	EmailProvider       string // sendgrid, ses or stub
	SendGridAPIKey      string
	EmailFromAddress    string
	EmailFromName       string
	SESConfigurationSet string
	ClinicNotifyEmail   string

	// Identity
	JWTSecret      string
	AdminJWTSecret string

	// Booking rules
	ClinicTimezone  string
	SlotTimes       []string
	PriceTable      string
	Currency        string
	LookaheadBuffer time.Duration
	SweepInterval   time.Duration

	// Per-user limit on POST /appointments; zero disables it.
	ReserveRateLimit float64
	ReserveBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		StoreBackend:   strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DocumentsTable: getEnv("DOCUMENTS_TABLE", "mindcare_documents"),
		DocumentsIndex: getEnv("DOCUMENTS_COLLECTION_INDEX", "collection-index"),
		TxMaxAttempts:  getEnvAsInt("TX_MAX_ATTEMPTS", 3),
		TxBaseDelay:    getEnvAsDuration("TX_BASE_DELAY", 50*time.Millisecond),
		TxMaxDelay:     getEnvAsDuration("TX_MAX_DELAY", time.Second),
		TxTimeout:      getEnvAsDuration("TX_TIMEOUT", 10*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EventsQueueURL: getEnv("EVENTS_QUEUE_URL", ""),
		OutboxInterval: getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatch:    getEnvAsInt("OUTBOX_BATCH", 25),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", "bookings@mindcare.local"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "MindCare"),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		ClinicNotifyEmail:   getEnv("CLINIC_NOTIFY_EMAIL", ""),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		ClinicTimezone:  getEnv("CLINIC_TIMEZONE", "Asia/Bangkok"),
		SlotTimes:       getEnvAsList("SLOT_TIMES", nil),
		PriceTable:      getEnv("PRICE_TABLE", "30:500,60:900"),
		Currency:        getEnv("CURRENCY", "THB"),
		LookaheadBuffer: getEnvAsDuration("LOOKAHEAD_BUFFER", 0),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute),

		ReserveRateLimit: getEnvAsFloat("RESERVE_RATE_LIMIT", 1),
		ReserveBurst:     getEnvAsInt("RESERVE_BURST", 5),
	}
}

// Location resolves the clinic timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
