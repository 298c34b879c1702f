package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
)

// Event is one step in an appointment's lifecycle.
type Event interface {
	EventType() string
	AppointmentRef() string
	OccurredAt() time.Time
}

// Envelope is how an Event sits in the outbox and travels to sinks.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AppointmentID string          `json:"appointment_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

var (
	errNilEvent           = errors.New("events: event required")
	errMissingAppointment = errors.New("events: appointment id required")
	nowFunc               = time.Now

	eventNamespace = uuid.MustParse("6f1c2a8e-4d3b-5e7f-9a0b-1c2d3e4f5a6b")
)

// EventID is the id of the event of type eventType for an appointment. An
// appointment is reserved, cancelled and completed at most once each, so the
// id is stable across outbox redeliveries and lets consumers drop repeats.
func EventID(eventType, appointmentID string) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(eventType+"/"+appointmentID))
}

// Append stages evt as an outbox document in tx, so it commits or vanishes
// together with the appointment change it describes.
func Append(tx *docstore.Tx, evt Event) (Envelope, error) {
	if tx == nil {
		return Envelope{}, errors.New("events: transaction required")
	}
	env, err := seal(evt)
	if err != nil {
		return Envelope{}, err
	}
	tx.Create(OutboxPath(env.EventID), outboxRecord{Envelope: env})
	return env, nil
}

func seal(evt Event) (Envelope, error) {
	if evt == nil {
		return Envelope{}, errNilEvent
	}
	ref := strings.TrimSpace(evt.AppointmentRef())
	if ref == "" {
		return Envelope{}, errMissingAppointment
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return Envelope{}, errors.New("events: event type missing")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	at := evt.OccurredAt()
	if at.IsZero() {
		at = nowFunc()
	}
	return Envelope{
		EventID:       EventID(eventType, ref),
		EventType:     eventType,
		AppointmentID: ref,
		OccurredAt:    at.UTC(),
		Payload:       payload,
	}, nil
}
