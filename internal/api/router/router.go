package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/mindcare-booking/internal/auth"
	"github.com/wolfman30/mindcare-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/mindcare-booking/internal/http/middleware"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Doctors            *handlers.DoctorsHandler
	Appointments       *handlers.AppointmentsHandler
	Availability       *handlers.AvailabilityHandler
	UserAuthSecret     string
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Reservations per second allowed per user; zero disables limiting.
	ReserveRateLimit float64
	ReserveBurst     int

	// Ready reports dependency health for /health (optional).
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Get("/health", healthHandler(cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	// websocket upgrades stay outside the compressing group
	if cfg.Availability != nil {
		r.Get("/doctors/{doctorID}/days/{date}/availability/live", cfg.Availability.Live)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.Compress(5))

		if cfg.Doctors != nil {
			api.Get("/doctors", cfg.Doctors.List)
			api.Get("/doctors/{doctorID}", cfg.Doctors.Get)
		}
		if cfg.Availability != nil {
			api.Get("/doctors/{doctorID}/days/{date}/availability", cfg.Availability.Get)
		}

		// Signed-in user routes
		if cfg.Appointments != nil {
			api.Route("/appointments", func(appts chi.Router) {
				appts.Use(auth.RequireUser(cfg.UserAuthSecret))
				reserve := http.Handler(http.HandlerFunc(cfg.Appointments.Reserve))
				if cfg.ReserveRateLimit > 0 {
					reserve = httpmiddleware.RateLimit(cfg.ReserveRateLimit, cfg.ReserveBurst, userKey)(reserve)
				}
				appts.Method(http.MethodPost, "/", reserve)
				appts.Get("/", cfg.Appointments.List)
				appts.Get("/{appointmentID}", cfg.Appointments.Get)
				appts.Post("/{appointmentID}/cancel", cfg.Appointments.Cancel)
			})
		}

		// Back-office routes
		if cfg.AdminAuthSecret != "" && cfg.Doctors != nil {
			api.Route("/admin", func(admin chi.Router) {
				admin.Use(auth.RequireAdmin(cfg.AdminAuthSecret))
				admin.Put("/doctors/{doctorID}", cfg.Doctors.Upsert)
			})
		}
	})

	return r
}

func userKey(r *http.Request) string {
	if userID, ok := auth.CurrentUserID(r.Context()); ok {
		return "user:" + userID
	}
	return httpmiddleware.ClientIP(r)
}

func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
