package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mindcare-booking/internal/appointments"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// AppointmentsHandler exposes booking, listing and cancellation.
type AppointmentsHandler struct {
	svc    *appointments.Service
	logger *logging.Logger
}

// NewAppointmentsHandler creates an appointments handler.
func NewAppointmentsHandler(svc *appointments.Service, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("handlers: appointments service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

// ListAppointmentsResponse wraps a user's appointments.
type ListAppointmentsResponse struct {
	Scope        appointments.Scope         `json:"scope"`
	Appointments []appointments.Appointment `json:"appointments"`
	Total        int                        `json:"total"`
}

// Reserve handles POST /appointments.
func (h *AppointmentsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req appointments.ReserveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: codeInvalidInput, Message: "invalid JSON body"})
		return
	}
	req.UserID = userID

	appt, err := h.svc.Reserve(r.Context(), req)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}
	w.Header().Set("Location", "/appointments/"+appt.ID)
	writeJSON(w, http.StatusCreated, appt)
}

// List handles GET /appointments?scope=upcoming|past|all.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	scope, err := appointments.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeAppointmentError(w, err)
		return
	}
	list, err := h.svc.ListForUser(r.Context(), userID, scope)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListAppointmentsResponse{Scope: scope, Appointments: list, Total: len(list)})
}

// Get handles GET /appointments/{appointmentID}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeAppointmentError(w, err)
		return
	}
	appt.Status = appt.EffectiveStatus(h.svc.Now(), h.svc.Location())
	writeJSON(w, http.StatusOK, appt)
}

// Cancel handles POST /appointments/{appointmentID}/cancel. Cancelling an
// already cancelled appointment succeeds; cancelling a finished one is 409.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), appointments.CancelRequest{
		UserID:        userID,
		AppointmentID: chi.URLParam(r, "appointmentID"),
	})
	if err != nil {
		writeAppointmentError(w, err)
		return
	}
	if appt.Status != appointments.StatusCancelled {
		writeError(w, http.StatusConflict, ErrorResponse{
			Error:   codeNotCancellable,
			Message: "appointment has already taken place",
		})
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
