package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/docstore/memstore"
	"github.com/wolfman30/mindcare-booking/internal/observability/metrics"
)

type recordingHandler struct {
	seen []Envelope
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, env Envelope) error {
	if h.err != nil {
		return h.err
	}
	h.seen = append(h.seen, env)
	return nil
}

func stage(t *testing.T, store *docstore.Store, evt Event) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		var err error
		env, err = Append(tx, evt)
		return err
	}))
	return env
}

func TestAppendStagesEnvelope(t *testing.T) {
	store := docstore.New(memstore.New())
	ts := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	env := stage(t, store, AppointmentReservedV1{AppointmentID: "a1", DoctorID: "doc1", Time: "14:00", ReservedAt: ts})

	assert.Equal(t, EventID(TypeAppointmentReserved, "a1"), env.EventID)
	assert.Equal(t, TypeAppointmentReserved, env.EventType)
	assert.Equal(t, "a1", env.AppointmentID)
	assert.True(t, ts.Equal(env.OccurredAt))

	snap, err := store.Get(context.Background(), OutboxPath(env.EventID))
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.Equal(t, false, snap.Data["delivered"])
}

func TestEventIDIsStablePerAppointmentAndType(t *testing.T) {
	id := EventID(TypeAppointmentCancelled, "a1")
	assert.Equal(t, id, EventID(TypeAppointmentCancelled, "a1"))
	assert.NotEqual(t, id, EventID(TypeAppointmentReserved, "a1"))
	assert.NotEqual(t, id, EventID(TypeAppointmentCancelled, "a2"))
}

func TestAppendDefaultsOccurredAt(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	t.Cleanup(func() { nowFunc = time.Now })

	env := stage(t, docstore.New(memstore.New()), AppointmentCompletedV1{AppointmentID: "a1"})
	assert.True(t, fixed.Equal(env.OccurredAt))
}

func TestAppendValidates(t *testing.T) {
	store := docstore.New(memstore.New())
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		_, err := Append(tx, AppointmentCancelledV1{AppointmentID: " "})
		return err
	})
	assert.ErrorIs(t, err, errMissingAppointment)

	err = store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		_, err := Append(tx, nil)
		return err
	})
	assert.ErrorIs(t, err, errNilEvent)

	_, err = Append(nil, AppointmentCancelledV1{AppointmentID: "a1"})
	assert.Error(t, err)
}

func TestDelivererDrainsInOrder(t *testing.T) {
	store := docstore.New(memstore.New())
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	second := stage(t, store, AppointmentCancelledV1{AppointmentID: "a1", CancelledAt: base.Add(time.Minute)})
	first := stage(t, store, AppointmentReservedV1{AppointmentID: "a1", ReservedAt: base})

	handler := &recordingHandler{}
	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	d := NewDeliverer(NewOutboxStore(store), handler, nil).WithBatchSize(10).WithMetrics(m)

	assert.Equal(t, 2, d.drain(context.Background()))
	require.Len(t, handler.seen, 2)
	assert.Equal(t, first.EventID, handler.seen[0].EventID)
	assert.Equal(t, second.EventID, handler.seen[1].EventID)

	var payload AppointmentReservedV1
	require.NoError(t, json.Unmarshal(handler.seen[0].Payload, &payload))
	assert.Equal(t, "a1", payload.AppointmentID)

	pending, err := NewOutboxStore(store).FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDelivererKeepsFailedEventsPending(t *testing.T) {
	store := docstore.New(memstore.New())
	stage(t, store, AppointmentReservedV1{AppointmentID: "a1"})

	d := NewDeliverer(NewOutboxStore(store), &recordingHandler{err: errors.New("queue down")}, nil)
	assert.Equal(t, 0, d.drain(context.Background()))

	pending, err := NewOutboxStore(store).FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	store := docstore.New(memstore.New())
	env := stage(t, store, AppointmentReservedV1{AppointmentID: "a1"})
	outbox := NewOutboxStore(store)

	ok, err := outbox.MarkDelivered(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = outbox.MarkDelivered(context.Background(), env.EventID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = outbox.MarkDelivered(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchPendingHonoursLimit(t *testing.T) {
	store := docstore.New(memstore.New())
	for _, id := range []string{"a1", "a2", "a3"} {
		stage(t, store, AppointmentReservedV1{AppointmentID: id})
	}
	pending, err := NewOutboxStore(store).FetchPending(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
