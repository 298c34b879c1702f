package events

import "time"

const (
	TypeAppointmentReserved  = "appointment.reserved.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
	TypeAppointmentCompleted = "appointment.completed.v1"
)

type AppointmentReservedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	DoctorID      string    `json:"doctor_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Duration      int       `json:"duration"`
	Price         int       `json:"price"`
	Currency      string    `json:"currency"`
	ReservedAt    time.Time `json:"reserved_at"`
}

func (AppointmentReservedV1) EventType() string { return TypeAppointmentReserved }
func (e AppointmentReservedV1) AppointmentRef() string { return e.AppointmentID }
func (e AppointmentReservedV1) OccurredAt() time.Time { return e.ReservedAt }

type AppointmentCancelledV1 struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	DoctorID      string    `json:"doctor_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	SlotReleased  bool      `json:"slot_released"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (AppointmentCancelledV1) EventType() string { return TypeAppointmentCancelled }
func (e AppointmentCancelledV1) AppointmentRef() string { return e.AppointmentID }
func (e AppointmentCancelledV1) OccurredAt() time.Time { return e.CancelledAt }

type AppointmentCompletedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	UserID        string    `json:"user_id"`
	DoctorID      string    `json:"doctor_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (AppointmentCompletedV1) EventType() string { return TypeAppointmentCompleted }
func (e AppointmentCompletedV1) AppointmentRef() string { return e.AppointmentID }
func (e AppointmentCompletedV1) OccurredAt() time.Time { return e.CompletedAt }
