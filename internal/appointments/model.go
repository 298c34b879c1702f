package appointments

import (
	"time"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/schedule"
)

const collection = "appointments"

// Status is the lifecycle state stored on an appointment.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Appointment is the durable booking record. Records are never deleted;
// cancellation only changes Status.
type Appointment struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	DoctorID    string     `json:"doctorId"`
	DoctorName  string     `json:"doctorName"`
	Specialty   string     `json:"specialty"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Duration    int        `json:"duration"`
	Price       int        `json:"price"`
	Currency    string     `json:"currency"`
	Status      Status     `json:"status"`
	Paid        bool       `json:"paid"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Path returns the document path of an appointment.
func Path(id string) docstore.Path {
	return docstore.Doc(collection, id)
}

// StartsAt is the slot start in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return schedule.StartOf(a.Date, a.Time, loc)
}

// EndsAt is the slot start plus the session length.
func (a *Appointment) EndsAt(loc *time.Location) (time.Time, error) {
	start, err := a.StartsAt(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(a.Duration) * time.Minute), nil
}

// EffectiveStatus reports an upcoming appointment whose session has ended as
// completed, whether or not the sweeper has persisted that yet.
func (a *Appointment) EffectiveStatus(now time.Time, loc *time.Location) Status {
	if a.Status != StatusUpcoming {
		return a.Status
	}
	end, err := a.EndsAt(loc)
	if err != nil {
		return a.Status
	}
	if !now.Before(end) {
		return StatusCompleted
	}
	return StatusUpcoming
}

// CanCancel is true only while the appointment is effectively upcoming.
func (a *Appointment) CanCancel(now time.Time, loc *time.Location) bool {
	return a.EffectiveStatus(now, loc) == StatusUpcoming
}

func decode(snap *docstore.Snapshot) (*Appointment, error) {
	var a Appointment
	if err := snap.DataTo(&a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = snap.Path.ID()
	}
	return &a, nil
}
