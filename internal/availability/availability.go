// Package availability renders the advisory per-slot view of one doctor's day.
// The view is never authoritative; reservations re-check the slot map inside
// their transaction.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/schedule"
	"github.com/wolfman30/mindcare-booking/internal/slots"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// ErrInvalidRequest rejects malformed doctor ids or dates.
var ErrInvalidRequest = errors.New("availability: invalid request")

// State of one grid time.
type State string

const (
	StateFree  State = "free"
	StateTaken State = "taken"
	StatePast  State = "past"
)

type Slot struct {
	Time  string `json:"time"`
	State State  `json:"state"`
}

// View lists every grid time for a doctor and date.
type View struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
	Slots    []Slot `json:"slots"`
	// Degraded is set when the live feed failed and taken times are unknown.
	Degraded bool `json:"degraded,omitempty"`
}

// Free returns the bookable times.
func (v View) Free() []string {
	var out []string
	for _, s := range v.Slots {
		if s.State == StateFree {
			out = append(out, s.Time)
		}
	}
	return out
}

// Compute classifies each grid time: taken if the map holds it, past if the
// date is before today or the time is not beyond now+buffer today, else free.
func Compute(grid *schedule.Grid, m *slots.Map, date string, now time.Time, loc *time.Location, buffer time.Duration) View {
	if loc == nil {
		loc = time.UTC
	}
	view := View{Date: date}
	if m != nil {
		view.DoctorID = m.DoctorID
	}
	today := schedule.Today(now, loc)
	local := now.In(loc)
	cutoff := local.Hour()*60 + local.Minute() + int(buffer/time.Minute)

	for _, label := range grid.Labels() {
		state := StateFree
		switch {
		case m != nil && !m.IsFree(label):
			state = StateTaken
		case date < today:
			state = StatePast
		case date == today:
			if mins, err := schedule.Minutes(label); err == nil && mins <= cutoff {
				state = StatePast
			}
		}
		view.Slots = append(view.Slots, Slot{Time: label, State: state})
	}
	return view
}

// Service reads and watches availability.
type Service struct {
	store  *docstore.Store
	grid   *schedule.Grid
	loc    *time.Location
	buffer time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// NewService creates an availability service. A nil grid uses the default.
func NewService(store *docstore.Store, grid *schedule.Grid, loc *time.Location, buffer time.Duration, logger *logging.Logger) *Service {
	if store == nil {
		panic("availability: document store required")
	}
	if grid == nil {
		grid = schedule.DefaultGrid()
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, grid: grid, loc: loc, buffer: buffer, now: time.Now, logger: logger}
}

// WithClock overrides time.Now (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Get reads the slot map and computes the view. Read failures are returned,
// never shown as an all-free day.
func (s *Service) Get(ctx context.Context, doctorID, date string) (View, error) {
	if err := validate(doctorID, date); err != nil {
		return View{}, err
	}
	m, err := slots.Read(ctx, s.store, doctorID, date)
	if err != nil {
		return View{}, fmt.Errorf("availability: %w", err)
	}
	return Compute(s.grid, m, date, s.now(), s.loc, s.buffer), nil
}

// Watch calls fn with a fresh view on every committed change to the day until
// ctx ends or stop is called. Feed failures produce a Degraded view with no
// taken times; the booking transaction still guards the slot.
func (s *Service) Watch(ctx context.Context, doctorID, date string, fn func(View)) (func(), error) {
	if err := validate(doctorID, date); err != nil {
		return nil, err
	}
	return s.store.Subscribe(ctx, slots.Path(doctorID, date), func(snap *docstore.Snapshot, err error) {
		if err != nil {
			s.logger.Warn("availability feed failed", "doctor_id", doctorID, "date", date, "error", err)
			view := Compute(s.grid, &slots.Map{DoctorID: doctorID, Date: date, Taken: map[string]string{}}, date, s.now(), s.loc, s.buffer)
			view.Degraded = true
			fn(view)
			return
		}
		fn(Compute(s.grid, slots.FromSnapshot(doctorID, date, snap), date, s.now(), s.loc, s.buffer))
	})
}

func validate(doctorID, date string) error {
	if strings.TrimSpace(doctorID) == "" || strings.Contains(doctorID, "/") {
		return fmt.Errorf("%w: doctor id", ErrInvalidRequest)
	}
	if _, err := schedule.ParseDate(date); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
