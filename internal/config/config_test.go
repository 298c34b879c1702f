package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "STORE_BACKEND", "TX_MAX_ATTEMPTS", "SLOT_TIMES", "CLINIC_TIMEZONE", "LOOKAHEAD_BUFFER", "RESERVE_RATE_LIMIT", "RESERVE_BURST", "EMAIL_PROVIDER", "DOCUMENTS_COLLECTION_INDEX"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected memory store by default, got %s", cfg.StoreBackend)
	}
	if cfg.TxMaxAttempts != 3 {
		t.Fatalf("expected 3 transaction attempts, got %d", cfg.TxMaxAttempts)
	}
	if cfg.DocumentsIndex != "collection-index" {
		t.Fatalf("expected default collection index, got %q", cfg.DocumentsIndex)
	}
	if cfg.TxBaseDelay != 50*time.Millisecond {
		t.Fatalf("unexpected base delay %s", cfg.TxBaseDelay)
	}
	if cfg.SlotTimes != nil {
		t.Fatalf("expected no slot override, got %v", cfg.SlotTimes)
	}
	if cfg.LookaheadBuffer != 0 {
		t.Fatalf("expected zero lookahead buffer, got %s", cfg.LookaheadBuffer)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %q", cfg.EmailProvider)
	}
	if cfg.ReserveRateLimit != 1 || cfg.ReserveBurst != 5 {
		t.Fatalf("unexpected reserve limit %v/%d", cfg.ReserveRateLimit, cfg.ReserveBurst)
	}
	if cfg.Location().String() != "Asia/Bangkok" {
		t.Fatalf("expected Asia/Bangkok, got %s", cfg.Location())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", " DynamoDB ")
	t.Setenv("TX_MAX_ATTEMPTS", "5")
	t.Setenv("TX_TIMEOUT", "3s")
	t.Setenv("SLOT_TIMES", "09:00, 10:00,,11:00")
	t.Setenv("LOOKAHEAD_BUFFER", "30m")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com,*")
	t.Setenv("RESERVE_RATE_LIMIT", "0.5")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.StoreBackend != "dynamodb" {
		t.Fatalf("expected normalized backend, got %q", cfg.StoreBackend)
	}
	if cfg.TxMaxAttempts != 5 || cfg.TxTimeout != 3*time.Second {
		t.Fatalf("unexpected tx settings: %d %s", cfg.TxMaxAttempts, cfg.TxTimeout)
	}
	if len(cfg.SlotTimes) != 3 || cfg.SlotTimes[1] != "10:00" {
		t.Fatalf("unexpected slot times %v", cfg.SlotTimes)
	}
	if cfg.LookaheadBuffer != 30*time.Minute {
		t.Fatalf("unexpected buffer %s", cfg.LookaheadBuffer)
	}
	if !cfg.RedisTLS {
		t.Fatal("expected redis tls enabled")
	}
	if cfg.ReserveRateLimit != 0.5 {
		t.Fatalf("unexpected reserve limit %v", cfg.ReserveRateLimit)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Not/AZone"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %s", cfg.Location())
	}
}
