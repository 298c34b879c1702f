package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/events"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// Sweeper persists the completed status for appointments whose session has
// ended. Reads already derive it through EffectiveStatus; the sweeper makes
// it durable and emits the completion event.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *logging.Logger
}

// NewSweeper creates a sweeper over svc.
func NewSweeper(svc *Service, interval time.Duration, logger *logging.Logger) *Sweeper {
	if svc == nil {
		panic("appointments: service required")
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// Start runs until ctx is cancelled.
func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("appointment sweeper started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("appointment sweeper stopped")
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				w.logger.Error("appointment sweep failed", "error", err)
			} else if n > 0 {
				w.logger.Info("appointments completed", "count", n)
			}
		}
	}
}

// Sweep completes every ended appointment that is still stored as upcoming.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	snaps, err := w.svc.store.Query(ctx, collection, docstore.Where("status", string(StatusUpcoming)))
	if err != nil {
		return 0, fmt.Errorf("appointments: sweep query: %w", err)
	}
	now := w.svc.now()
	completed := 0
	for _, snap := range snaps {
		a, err := decode(snap)
		if err != nil {
			w.logger.Warn("skipping undecodable appointment", "path", snap.Path.String(), "error", err)
			continue
		}
		if a.EffectiveStatus(now, w.svc.loc) != StatusCompleted {
			continue
		}
		ok, err := w.complete(ctx, a.ID, now)
		if err != nil {
			w.logger.Error("failed to complete appointment", "appointment_id", a.ID, "error", err)
			continue
		}
		if ok {
			completed++
		}
	}
	return completed, nil
}

func (w *Sweeper) complete(ctx context.Context, id string, now time.Time) (bool, error) {
	done := false
	err := w.svc.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		done = false
		snap, err := tx.Get(ctx, Path(id))
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return nil
		}
		a, err := decode(snap)
		if err != nil {
			return err
		}
		// a cancel may have landed since the query
		if a.Status != StatusUpcoming {
			return nil
		}
		at := now.UTC()
		tx.Update(Path(id),
			docstore.SetField(string(StatusCompleted), "status"),
			docstore.SetField(at, "completedAt"),
		)
		if _, err := events.Append(tx, events.AppointmentCompletedV1{
			AppointmentID: id,
			UserID:        a.UserID,
			DoctorID:      a.DoctorID,
			CompletedAt:   at,
		}); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}
