package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/mindcare-booking/internal/appointments"
	"github.com/wolfman30/mindcare-booking/internal/availability"
	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/memstore"
	"github.com/wolfman30/mindcare-booking/internal/doctors"
	"github.com/wolfman30/mindcare-booking/internal/http/handlers"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

const (
	userSecret  = "user-secret"
	adminSecret = "admin-secret"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()

	logger := logging.NewWithWriter("error", io.Discard)
	store := docstore.New(memstore.New(), docstore.WithLogger(logger))
	repo := doctors.NewRepository(store, logger)
	if err := repo.Upsert(context.Background(), doctors.Doctor{ID: "doc1", Name: "Dr. Ploy", Specialty: "Anxiety"}); err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	now := func() time.Time { return time.Date(2025, 5, 31, 9, 0, 0, 0, time.UTC) }
	appts := appointments.NewService(store, repo, appointments.WithClock(now), appointments.WithLogger(logger))
	avail := availability.NewService(store, nil, time.UTC, 0, logger).WithClock(now)

	return &Config{
		Logger:          logger,
		Doctors:         handlers.NewDoctorsHandler(repo, appts, logger),
		Appointments:    handlers.NewAppointmentsHandler(appts, logger),
		Availability:    handlers.NewAvailabilityHandler(avail, logger),
		UserAuthSecret:  userSecret,
		AdminAuthSecret: adminSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func reserveRequest(t *testing.T, token, slot string) *http.Request {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"doctorId": "doc1", "date": "2025-06-01", "time": slot, "duration": 30})
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := New(newTestConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterHealthReportsDegraded(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Ready = func(ctx context.Context) error { return errors.New("redis down") }
	router := New(cfg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRouterAppointmentsRequireToken(t *testing.T) {
	router := New(newTestConfig(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, reserveRequest(t, "", "14:00"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, reserveRequest(t, signToken(t, "wrong-secret", "userA"), "14:00"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with foreign token, got %d", rr.Code)
	}
}

func TestRouterReserveAndList(t *testing.T) {
	router := New(newTestConfig(t))
	token := signToken(t, userSecret, "userA")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, reserveRequest(t, token, "14:00"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/appointments?scope=upcoming", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list handlers.ListAppointmentsResponse
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Appointments[0].UserID != "userA" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}

func TestRouterRateLimitsReservations(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ReserveRateLimit = 0.001
	cfg.ReserveBurst = 1
	router := New(cfg)
	token := signToken(t, userSecret, "userA")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, reserveRequest(t, token, "14:00"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected first reservation to pass, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, reserveRequest(t, token, "15:00"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, reserveRequest(t, signToken(t, userSecret, "userB"), "15:00"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected other user to pass, got %d", rr.Code)
	}
}

func TestRouterAdminDoctorUpsert(t *testing.T) {
	router := New(newTestConfig(t))
	body := `{"name":"Dr. Mali","specialty":"Trauma"}`

	req := httptest.NewRequest(http.MethodPut, "/admin/doctors/doc9", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/doctors/doc9", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, adminSecret, "ops"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/doctors/doc9", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected saved doctor to be readable, got %d", rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := New(newTestConfig(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "# metrics") {
		t.Fatalf("expected metrics handler, got %d", rr.Code)
	}
}
