package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mindcare-booking/internal/appointments"
	"github.com/wolfman30/mindcare-booking/internal/doctors"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// DoctorsHandler serves the doctor directory.
type DoctorsHandler struct {
	repo   *doctors.Repository
	appts  *appointments.Service
	logger *logging.Logger
}

// NewDoctorsHandler creates a doctor directory handler. appts may be nil, in
// which case appointment counts are omitted.
func NewDoctorsHandler(repo *doctors.Repository, appts *appointments.Service, logger *logging.Logger) *DoctorsHandler {
	if repo == nil {
		panic("handlers: doctor repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DoctorsHandler{repo: repo, appts: appts, logger: logger}
}

// ListDoctorsResponse wraps the directory listing.
type ListDoctorsResponse struct {
	Doctors []doctors.Doctor `json:"doctors"`
	Total   int              `json:"total"`
}

// DoctorResponse is a doctor profile plus booking count.
type DoctorResponse struct {
	doctors.Doctor
	Specialties      []string `json:"specialties"`
	AppointmentCount *int     `json:"appointmentCount,omitempty"`
}

// List handles GET /doctors?specialty=&tag=&sort=rating|reviews|name.
func (h *DoctorsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.repo.List(r.Context(), doctors.ListOptions{
		Specialty: q.Get("specialty"),
		Tag:       q.Get("tag"),
		SortBy:    q.Get("sort"),
	})
	if err != nil {
		h.logger.Error("list doctors failed", "error", err)
		writeStoreUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, ListDoctorsResponse{Doctors: list, Total: len(list)})
}

// Get handles GET /doctors/{doctorID}.
func (h *DoctorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.Get(r.Context(), chi.URLParam(r, "doctorID"))
	if errors.Is(err, doctors.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: codeNotFound, Message: "doctor not found"})
		return
	}
	if err != nil {
		h.logger.Error("get doctor failed", "error", err)
		writeStoreUnavailable(w)
		return
	}
	resp := DoctorResponse{Doctor: *d, Specialties: d.Specialties()}
	if h.appts != nil {
		if n, err := h.appts.CountForDoctor(r.Context(), d.ID); err == nil {
			resp.AppointmentCount = &n
		} else {
			h.logger.Warn("count appointments failed", "doctor_id", d.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upsert handles PUT /admin/doctors/{doctorID}.
func (h *DoctorsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var d doctors.Doctor
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: codeInvalidInput, Message: "invalid JSON body"})
		return
	}
	d.ID = chi.URLParam(r, "doctorID")
	err := h.repo.Upsert(r.Context(), d)
	if errors.Is(err, doctors.ErrInvalidDoctor) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: codeInvalidInput, Message: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("upsert doctor failed", "doctor_id", d.ID, "error", err)
		writeStoreUnavailable(w)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
