// Package slots owns the per doctor, per day map from start time to the
// appointment holding it. The map lives at doctors/{doctorId}/days/{date} in
// the "taken" field and is only changed inside a transaction.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
)

const takenField = "taken"

// ErrSlotTaken is returned by Reserve when the time already has an owner.
var ErrSlotTaken = errors.New("slots: time already taken")

// Reader is satisfied by both *docstore.Store and *docstore.Tx.
type Reader interface {
	Get(ctx context.Context, path docstore.Path) (*docstore.Snapshot, error)
}

// Map is the taken set for one doctor and date.
type Map struct {
	DoctorID string
	Date     string
	Taken    map[string]string
	Version  int64
}

// Path returns the document path holding the map.
func Path(doctorID, date string) docstore.Path {
	return docstore.Doc("doctors", doctorID, "days", date)
}

// Read loads the map; an absent document is an empty map. Failures are
// returned, never reported as an all-free day.
func Read(ctx context.Context, r Reader, doctorID, date string) (*Map, error) {
	snap, err := r.Get(ctx, Path(doctorID, date))
	if err != nil {
		return nil, fmt.Errorf("slots: read %s/%s: %w", doctorID, date, err)
	}
	return FromSnapshot(doctorID, date, snap), nil
}

// ReadTx reads the map inside a transaction, adding it to the read set.
func ReadTx(ctx context.Context, tx *docstore.Tx, doctorID, date string) (*Map, error) {
	return Read(ctx, tx, doctorID, date)
}

// FromSnapshot decodes a day document.
func FromSnapshot(doctorID, date string, snap *docstore.Snapshot) *Map {
	m := &Map{DoctorID: doctorID, Date: date, Taken: map[string]string{}}
	if !snap.Exists() {
		return m
	}
	m.Version = snap.Version
	raw, _ := snap.Data[takenField].(map[string]any)
	for label, owner := range raw {
		if owner == nil {
			continue
		}
		if id, ok := owner.(string); ok {
			m.Taken[label] = id
			continue
		}
		m.Taken[label] = fmt.Sprint(owner)
	}
	return m
}

// IsFree reports whether nobody holds label.
func (m *Map) IsFree(label string) bool {
	_, taken := m.Taken[label]
	return !taken
}

// Owner returns the appointment id holding label.
func (m *Map) Owner(label string) (string, bool) {
	id, ok := m.Taken[label]
	return id, ok
}

// Labels returns the taken times in lexical (and so chronological) order.
func (m *Map) Labels() []string {
	out := make([]string, 0, len(m.Taken))
	for label := range m.Taken {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Reserve buffers taken.{label} = appointmentID in tx. Other entries of the
// map are left untouched.
func Reserve(tx *docstore.Tx, m *Map, label, appointmentID string) error {
	if !m.IsFree(label) {
		return fmt.Errorf("%w: %s %s %s", ErrSlotTaken, m.DoctorID, m.Date, label)
	}
	tx.Merge(Path(m.DoctorID, m.Date), docstore.SetField(appointmentID, takenField, label))
	m.Taken[label] = appointmentID
	return nil
}

// Release deletes taken.{label} only when it still belongs to appointmentID.
// It reports whether a delete was buffered.
func Release(tx *docstore.Tx, m *Map, label, appointmentID string) bool {
	owner, ok := m.Taken[label]
	if !ok || owner != appointmentID {
		return false
	}
	tx.Update(Path(m.DoctorID, m.Date), docstore.DeleteField(takenField, label))
	delete(m.Taken, label)
	return true
}
