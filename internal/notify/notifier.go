// Package notify emails booking confirmations and cancellations. It runs as
// an outbox delivery handler, so it sees each committed event at least once.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/mindcare-booking/internal/doctors"
	"github.com/wolfman30/mindcare-booking/internal/events"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

const defaultFromName = "MindCare"

// DoctorDirectory resolves doctor names and contact addresses.
type DoctorDirectory interface {
	Get(ctx context.Context, id string) (*doctors.Doctor, error)
}

// Notifier turns appointment events into emails for the clinic inbox and
// the doctor.
type Notifier struct {
	email       EmailSender
	doctors     DoctorDirectory
	clinicInbox string
	logger      *logging.Logger
}

var _ events.DeliveryHandler = (*Notifier)(nil)

// NewNotifier creates a notifier. clinicInbox may be empty, in which case
// only doctors with an email contact are notified.
func NewNotifier(email EmailSender, directory DoctorDirectory, clinicInbox string, logger *logging.Logger) *Notifier {
	if email == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{email: email, doctors: directory, clinicInbox: strings.TrimSpace(clinicInbox), logger: logger}
}

// Handle sends emails for reserved and cancelled appointments and ignores
// everything else.
func (n *Notifier) Handle(ctx context.Context, env events.Envelope) error {
	var (
		doctorID string
		msg      EmailMessage
	)
	switch env.EventType {
	case events.TypeAppointmentReserved:
		var evt events.AppointmentReservedV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode %s: %w", env.EventType, err)
		}
		doctorID = evt.DoctorID
		msg = EmailMessage{
			Subject:  fmt.Sprintf("New appointment %s %s", evt.Date, evt.Time),
			Body:     fmt.Sprintf("Appointment %s booked for %s at %s (%d min, %d %s).", evt.AppointmentID, evt.Date, evt.Time, evt.Duration, evt.Price, evt.Currency),
			Category: "appointment_reserved",
		}
	case events.TypeAppointmentCancelled:
		var evt events.AppointmentCancelledV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("notify: decode %s: %w", env.EventType, err)
		}
		doctorID = evt.DoctorID
		msg = EmailMessage{
			Subject:  fmt.Sprintf("Appointment cancelled %s %s", evt.Date, evt.Time),
			Body:     fmt.Sprintf("Appointment %s on %s at %s was cancelled. The time is open again.", evt.AppointmentID, evt.Date, evt.Time),
			Category: "appointment_cancelled",
		}
	default:
		return nil
	}
	msg.EventID = env.EventID.String()

	recipients := n.recipients(ctx, doctorID, &msg)
	if len(recipients) == 0 {
		n.logger.Debug("notify: no recipients", "event_id", msg.EventID, "doctor_id", doctorID)
		return nil
	}
	var errs []error
	for _, r := range recipients {
		out := msg
		out.To, out.ToName = r.address, r.name
		if err := n.email.Send(ctx, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type recipient struct {
	address string
	name    string
}

func (n *Notifier) recipients(ctx context.Context, doctorID string, msg *EmailMessage) []recipient {
	var out []recipient
	if n.clinicInbox != "" {
		out = append(out, recipient{address: n.clinicInbox, name: "Clinic"})
	}
	if n.doctors == nil || doctorID == "" {
		return out
	}
	d, err := n.doctors.Get(ctx, doctorID)
	if err != nil {
		n.logger.Warn("notify: doctor lookup failed", "doctor_id", doctorID, "error", err)
		return out
	}
	msg.Body = fmt.Sprintf("%s\nDoctor: %s", msg.Body, d.Name)
	if strings.Contains(d.Contact, "@") {
		out = append(out, recipient{address: strings.TrimSpace(d.Contact), name: d.Name})
	}
	return out
}
