package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/doctors"
	"github.com/wolfman30/mindcare-booking/internal/events"
	"github.com/wolfman30/mindcare-booking/internal/observability/metrics"
	"github.com/wolfman30/mindcare-booking/internal/schedule"
	"github.com/wolfman30/mindcare-booking/internal/slots"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

var appointmentsTracer = otel.Tracer("mindcare.internal.appointments")

const (
	opReserve = "reserve"
	opCancel  = "cancel"
)

// ReserveRequest asks for one slot. Price may be zero, in which case the
// table price for Duration is charged.
type ReserveRequest struct {
	UserID   string `json:"-"`
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
	Price    int    `json:"price,omitempty"`
}

// CancelRequest cancels one of the user's appointments.
type CancelRequest struct {
	UserID        string
	AppointmentID string
}

// Scope selects which of a user's appointments to list.
type Scope string

const (
	ScopeUpcoming Scope = "upcoming"
	ScopePast     Scope = "past"
	ScopeAll      Scope = "all"
)

// ParseScope maps a query parameter to a Scope, defaulting to upcoming.
func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeUpcoming:
		return ScopeUpcoming, nil
	case ScopePast:
		return ScopePast, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", invalid("scope", fmt.Sprintf("unknown scope %q", raw))
}

// Service runs reservation and cancellation transactions.
type Service struct {
	store    *docstore.Store
	doctors  *doctors.Repository
	grid     *schedule.Grid
	prices   schedule.PriceTable
	currency string
	loc      *time.Location
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

func WithGrid(g *schedule.Grid) Option {
	return func(s *Service) {
		if g != nil {
			s.grid = g
		}
	}
}

func WithPrices(p schedule.PriceTable) Option {
	return func(s *Service) {
		if len(p) > 0 {
			s.prices = p
		}
	}
}

func WithCurrency(c string) Option {
	return func(s *Service) {
		if c != "" {
			s.currency = c
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides appointment id generation (tests).
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService constructs an appointments service.
func NewService(store *docstore.Store, repo *doctors.Repository, opts ...Option) *Service {
	if store == nil {
		panic("appointments: document store required")
	}
	if repo == nil {
		panic("appointments: doctor repository required")
	}
	s := &Service{
		store:    store,
		doctors:  repo,
		grid:     schedule.DefaultGrid(),
		prices:   schedule.DefaultPrices(),
		currency: "THB",
		loc:      time.UTC,
		logger:   logging.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic timezone the service evaluates slots in.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Reserve books a free slot. The slot map is re-read inside the transaction,
// so a stale availability view can never cause a double booking.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("mindcare.doctor_id", req.DoctorID),
		attribute.String("mindcare.date", req.Date),
		attribute.String("mindcare.time", req.Time),
	)
	started := time.Now()

	price, err := s.validate(req)
	if err != nil {
		s.observe(span, opReserve, "invalid_input", 0, started, err)
		return nil, err
	}

	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, doctors.ErrNotFound) {
			s.observe(span, opReserve, "invalid_input", 0, started, ErrDoctorNotFound)
			return nil, ErrDoctorNotFound
		}
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		s.observe(span, opReserve, "store_unavailable", 0, started, err)
		return nil, err
	}

	var (
		appt      *Appointment
		attempts  int
		recovered bool
		// ids written by earlier attempts; a commit can land even when the
		// backend reports a failure.
		issued = make(map[string]struct{})
	)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		attempts++
		appt, recovered = nil, false
		m, err := slots.ReadTx(ctx, tx, req.DoctorID, req.Date)
		if err != nil {
			return err
		}
		if owner, taken := m.Owner(req.Time); taken {
			if _, ours := issued[owner]; !ours {
				return ErrSlotConflict
			}
			landed, err := s.readOwnTx(ctx, tx, owner)
			if err != nil {
				return err
			}
			appt, recovered = landed, true
			return nil
		}

		now := s.now().UTC()
		a := &Appointment{
			ID:         s.newID(),
			UserID:     req.UserID,
			DoctorID:   req.DoctorID,
			DoctorName: doctor.Name,
			Specialty:  doctor.Specialty,
			Date:       req.Date,
			Time:       req.Time,
			Duration:   req.Duration,
			Price:      price,
			Currency:   s.currency,
			Status:     StatusUpcoming,
			Paid:       true,
			CreatedAt:  now,
		}
		issued[a.ID] = struct{}{}
		tx.Create(Path(a.ID), a)
		if err := slots.Reserve(tx, m, req.Time, a.ID); err != nil {
			return ErrSlotConflict
		}
		if _, err := events.Append(tx, events.AppointmentReservedV1{
			AppointmentID: a.ID,
			UserID:        a.UserID,
			DoctorID:      a.DoctorID,
			Date:          a.Date,
			Time:          a.Time,
			Duration:      a.Duration,
			Price:         a.Price,
			Currency:      a.Currency,
			ReservedAt:    now,
		}); err != nil {
			return err
		}
		appt = a
		return nil
	})

	switch {
	case err == nil:
		s.observe(span, opReserve, "committed", attempts, started, nil)
		span.SetAttributes(attribute.String("mindcare.appointment_id", appt.ID))
		s.logger.Info("appointment reserved",
			"appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.Date, "time", appt.Time,
			"attempts", attempts, "recovered", recovered)
		return appt, nil
	case errors.Is(err, ErrSlotConflict), errors.Is(err, docstore.ErrConflict):
		s.observe(span, opReserve, "slot_conflict", attempts, started, ErrSlotConflict)
		s.logger.Info("slot already taken", "doctor_id", req.DoctorID, "date", req.Date, "time", req.Time)
		return nil, ErrSlotConflict
	default:
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		s.observe(span, opReserve, "store_unavailable", attempts, started, err)
		s.logger.Error("reservation failed", "doctor_id", req.DoctorID, "date", req.Date, "time", req.Time, "error", err)
		return nil, err
	}
}

// readOwnTx loads an appointment this reservation wrote in an earlier attempt.
func (s *Service) readOwnTx(ctx context.Context, tx *docstore.Tx, id string) (*Appointment, error) {
	snap, err := tx.Get(ctx, Path(id))
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("appointments: slot names appointment %s which does not exist: %w", id, docstore.ErrUnavailable)
	}
	return decode(snap)
}

func (s *Service) validate(req ReserveRequest) (int, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return 0, invalid("user", "not signed in")
	}
	if strings.TrimSpace(req.DoctorID) == "" || strings.Contains(req.DoctorID, "/") {
		return 0, invalid("doctorId", "required")
	}
	if _, err := schedule.ParseDate(req.Date); err != nil {
		return 0, invalid("date", "must be YYYY-MM-DD")
	}
	if !s.grid.Contains(req.Time) {
		return 0, invalid("time", fmt.Sprintf("%q is not an offered time", req.Time))
	}
	price, ok := s.prices.PriceFor(req.Duration)
	if !ok {
		return 0, invalid("duration", fmt.Sprintf("offered durations are %v", s.prices.Durations()))
	}
	if req.Price != 0 && req.Price != price {
		return 0, invalid("price", fmt.Sprintf("expected %d for %d minutes", price, req.Duration))
	}
	start, err := schedule.StartOf(req.Date, req.Time, s.loc)
	if err != nil {
		return 0, invalid("time", err.Error())
	}
	if !start.After(s.now()) {
		return 0, invalid("time", "slot has already started")
	}
	return price, nil
}

// Cancel marks the appointment cancelled and releases its slot in one
// transaction. The slot entry is deleted only while it still names this
// appointment. Repeating a cancel is a no-op. Appointments that are no longer
// upcoming are returned unchanged; callers check Status.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("mindcare.appointment_id", req.AppointmentID))
	started := time.Now()

	if strings.TrimSpace(req.AppointmentID) == "" || strings.Contains(req.AppointmentID, "/") {
		s.observe(span, opCancel, "not_found", 0, started, ErrAppointmentNotFound)
		return nil, ErrAppointmentNotFound
	}

	var (
		result   *Appointment
		attempts int
		stale    bool
		changed  bool
	)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		attempts++
		result, stale, changed = nil, false, false

		snap, err := tx.Get(ctx, Path(req.AppointmentID))
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return ErrAppointmentNotFound
		}
		a, err := decode(snap)
		if err != nil {
			return err
		}
		if a.UserID != req.UserID {
			return ErrNotOwner
		}
		result = a
		now := s.now()
		if !a.CanCancel(now, s.loc) {
			return nil
		}

		m, err := slots.ReadTx(ctx, tx, a.DoctorID, a.Date)
		if err != nil {
			return err
		}
		released := slots.Release(tx, m, a.Time, a.ID)
		if !released {
			if _, held := m.Owner(a.Time); held {
				stale = true
			}
		}

		cancelledAt := now.UTC()
		tx.Update(Path(a.ID),
			docstore.SetField(string(StatusCancelled), "status"),
			docstore.SetField(cancelledAt, "cancelledAt"),
		)
		if _, err := events.Append(tx, events.AppointmentCancelledV1{
			AppointmentID: a.ID,
			UserID:        a.UserID,
			DoctorID:      a.DoctorID,
			Date:          a.Date,
			Time:          a.Time,
			SlotReleased:  released,
			CancelledAt:   cancelledAt,
		}); err != nil {
			return err
		}
		a.Status = StatusCancelled
		a.CancelledAt = &cancelledAt
		changed = true
		return nil
	})

	switch {
	case err == nil:
		outcome := "noop"
		if changed {
			outcome = "committed"
		}
		s.observe(span, opCancel, outcome, attempts, started, nil)
		if stale {
			s.metrics.ObserveStaleRelease()
			s.logger.Warn("cancel left slot untouched", "appointment_id", result.ID, "doctor_id", result.DoctorID,
				"date", result.Date, "time", result.Time, "error", errStaleOwnership)
		}
		if changed {
			s.logger.Info("appointment cancelled", "appointment_id", result.ID, "doctor_id", result.DoctorID, "attempts", attempts)
		}
		return result, nil
	case errors.Is(err, ErrAppointmentNotFound):
		s.observe(span, opCancel, "not_found", attempts, started, err)
		return nil, ErrAppointmentNotFound
	case errors.Is(err, ErrNotOwner):
		s.observe(span, opCancel, "not_owner", attempts, started, err)
		return nil, ErrNotOwner
	default:
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		s.observe(span, opCancel, "store_unavailable", attempts, started, err)
		s.logger.Error("cancellation failed", "appointment_id", req.AppointmentID, "error", err)
		return nil, err
	}
}

// Get returns one of the user's appointments.
func (s *Service) Get(ctx context.Context, userID, id string) (*Appointment, error) {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return nil, ErrAppointmentNotFound
	}
	snap, err := s.store.Get(ctx, Path(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !snap.Exists() {
		return nil, ErrAppointmentNotFound
	}
	a, err := decode(snap)
	if err != nil {
		return nil, fmt.Errorf("appointments: decode %s: %w", id, err)
	}
	if a.UserID != userID {
		return nil, ErrNotOwner
	}
	return a, nil
}

// ListForUser returns the user's appointments for scope. Upcoming ones are in
// start order, past ones newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, scope Scope) ([]Appointment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user", "not signed in")
	}
	snaps, err := s.store.Query(ctx, collection, docstore.Where("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	now := s.now()
	out := make([]Appointment, 0, len(snaps))
	for _, snap := range snaps {
		a, err := decode(snap)
		if err != nil {
			s.logger.Warn("skipping undecodable appointment", "path", snap.Path.String(), "error", err)
			continue
		}
		effective := a.EffectiveStatus(now, s.loc)
		switch scope {
		case ScopeUpcoming:
			if effective != StatusUpcoming {
				continue
			}
		case ScopePast:
			if effective == StatusUpcoming {
				continue
			}
		}
		a.Status = effective
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].Date+" "+out[i].Time, out[j].Date+" "+out[j].Time
		if scope == ScopePast {
			return ki > kj
		}
		return ki < kj
	})
	return out, nil
}

// CountForDoctor counts the doctor's appointments that were not cancelled.
func (s *Service) CountForDoctor(ctx context.Context, doctorID string) (int, error) {
	snaps, err := s.store.Query(ctx, collection, docstore.Where("doctorId", doctorID))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	n := 0
	for _, snap := range snaps {
		if status, _ := snap.Data["status"].(string); Status(status) != StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (s *Service) observe(span trace.Span, op, outcome string, attempts int, started time.Time, err error) {
	span.SetAttributes(
		attribute.String("mindcare.outcome", outcome),
		attribute.Int("mindcare.attempts", attempts),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.ObserveTransaction(op, outcome, attempts, time.Since(started).Seconds())
}
