package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/mindcare-booking/internal/availability"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// AvailabilityHandler serves day views and live updates over websockets.
type AvailabilityHandler struct {
	svc    *availability.Service
	logger *logging.Logger
}

// NewAvailabilityHandler creates an availability handler.
func NewAvailabilityHandler(svc *availability.Service, logger *logging.Logger) *AvailabilityHandler {
	if svc == nil {
		panic("handlers: availability service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{svc: svc, logger: logger}
}

// LiveMessage is pushed to websocket clients.
type LiveMessage struct {
	Type  string             `json:"type"` // "view", "error"
	View  *availability.View `json:"view,omitempty"`
	Error string             `json:"error,omitempty"`
}

// Get handles GET /doctors/{doctorID}/days/{date}/availability.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "doctorID"), chi.URLParam(r, "date"))
	if errors.Is(err, availability.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: codeInvalidInput, Message: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("availability read failed", "error", err)
		writeStoreUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Live handles GET /doctors/{doctorID}/days/{date}/availability/live and
// upgrades to a websocket that receives a fresh view after every change.
func (h *AvailabilityHandler) Live(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date := chi.URLParam(r, "date")
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveLive(conn, r, doctorID, date)
	}).ServeHTTP(w, r)
}

func (h *AvailabilityHandler) serveLive(conn *websocket.Conn, r *http.Request, doctorID, date string) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	views := make(chan availability.View, 1)
	stop, err := h.svc.Watch(ctx, doctorID, date, func(v availability.View) {
		select {
		case views <- v:
		case <-ctx.Done():
		}
	})
	if err != nil {
		_ = websocket.JSON.Send(conn, LiveMessage{Type: "error", Error: err.Error()})
		return
	}
	defer func() {
		cancel()
		stop()
	}()

	// the client sends nothing useful; a read error means it went away
	go func() {
		defer cancel()
		var discard map[string]any
		for {
			if err := websocket.JSON.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("availability: live connection opened", "doctor_id", doctorID, "date", date)
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("availability: live connection closed", "doctor_id", doctorID, "date", date)
			return
		case v := <-views:
			if err := websocket.JSON.Send(conn, LiveMessage{Type: "view", View: &v}); err != nil {
				return
			}
		}
	}
}
