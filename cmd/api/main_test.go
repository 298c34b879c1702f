package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appconfig "github.com/wolfman30/mindcare-booking/internal/config"
	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/memstore"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

func TestSetupMetricsExposesBookingMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveTransaction("reserve", "committed", 1, 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "mindcare_booking_transactions_total") {
		t.Fatalf("expected transaction counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestSetupServicesRejectsBadPriceTable(t *testing.T) {
	store := docstore.New(memstore.New())
	cfg := &appconfig.Config{PriceTable: "thirty:500", ClinicTimezone: "UTC"}
	if _, err := setupServices(cfg, store, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for malformed price table")
	}
}

func TestSetupServicesCustomGrid(t *testing.T) {
	store := docstore.New(memstore.New())
	cfg := &appconfig.Config{
		PriceTable:     "30:500,60:900",
		ClinicTimezone: "Asia/Bangkok",
		SlotTimes:      []string{"09:00", "09:30"},
		Currency:       "THB",
	}
	svc, err := setupServices(cfg, store, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.appointments.Location().String() != "Asia/Bangkok" {
		t.Fatalf("expected clinic timezone, got %s", svc.appointments.Location())
	}

	cfg.SlotTimes = []string{"9am"}
	if _, err := setupServices(cfg, store, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for malformed slot time")
	}
}

func TestReadinessWithoutRedis(t *testing.T) {
	if readiness(nil) != nil {
		t.Fatalf("expected no readiness probe without redis")
	}
}

func TestNeedsAWS(t *testing.T) {
	if needsAWS(&appconfig.Config{StoreBackend: "memory", EmailProvider: "stub"}) {
		t.Fatalf("memory store with stub email needs no AWS")
	}
	for _, cfg := range []*appconfig.Config{
		{StoreBackend: "dynamodb"},
		{EventsQueueURL: "https://sqs.example/queue"},
		{EmailProvider: "ses"},
	} {
		if !needsAWS(cfg) {
			t.Fatalf("expected AWS for %+v", cfg)
		}
	}
}
