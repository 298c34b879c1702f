package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/mindcare-booking/internal/appointments"
	"github.com/wolfman30/mindcare-booking/internal/auth"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

const (
	codeSlotConflict     = "slot_conflict"
	codeStoreUnavailable = "store_unavailable"
	codeInvalidInput     = "invalid_input"
	codeNotFound         = "not_found"
	codeForbidden        = "forbidden"
	codeNotCancellable   = "not_cancellable"
	codeUnauthorized     = "unauthorized"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// writeAppointmentError maps service errors onto HTTP statuses.
func writeAppointmentError(w http.ResponseWriter, err error) {
	var verr *appointments.ValidationError
	switch {
	case errors.Is(err, appointments.ErrSlotConflict):
		writeError(w, http.StatusConflict, ErrorResponse{
			Error:   codeSlotConflict,
			Message: "that time was just booked by someone else",
			Hint:    "refresh availability and choose another time",
		})
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: codeInvalidInput, Message: verr.Reason, Field: verr.Field})
	case errors.Is(err, appointments.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: codeInvalidInput, Message: err.Error()})
	case errors.Is(err, appointments.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Error: codeNotFound, Message: "appointment not found"})
	case errors.Is(err, appointments.ErrNotOwner):
		writeError(w, http.StatusForbidden, ErrorResponse{Error: codeForbidden, Message: "appointment belongs to another user"})
	default:
		writeStoreUnavailable(w)
	}
}

func writeStoreUnavailable(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "2")
	writeError(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:   codeStoreUnavailable,
		Message: "booking storage is temporarily unavailable",
		Hint:    "nothing was saved; try again shortly",
	})
}

// requireUserID reads the id RequireUser stored on the context.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorResponse{Error: codeUnauthorized, Message: "sign in to continue"})
		return "", false
	}
	return userID, true
}
