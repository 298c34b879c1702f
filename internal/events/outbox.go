package events

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/observability/metrics"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

const outboxCollection = "outbox"

// OutboxPath is the document path of a staged event.
func OutboxPath(id uuid.UUID) docstore.Path {
	return docstore.Doc(outboxCollection, id.String())
}

type outboxRecord struct {
	Envelope
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, env Envelope) error
}

// OutboxStore reads staged events and marks them delivered.
type OutboxStore struct {
	store *docstore.Store
}

func NewOutboxStore(store *docstore.Store) *OutboxStore {
	if store == nil {
		panic("events: document store required")
	}
	return &OutboxStore{store: store}
}

// FetchPending returns up to limit undelivered events, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]Envelope, error) {
	snaps, err := s.store.Query(ctx, outboxCollection, docstore.Where("delivered", false))
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	entries := make([]Envelope, 0, len(snaps))
	for _, snap := range snaps {
		var rec outboxRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("events: decode outbox: %w", err)
		}
		entries = append(entries, rec.Envelope)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].OccurredAt.Before(entries[j].OccurredAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// MarkDelivered flags the event; it reports false when it was already delivered.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	marked := false
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		marked = false
		snap, err := tx.Get(ctx, OutboxPath(id))
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return nil
		}
		if delivered, _ := snap.Data["delivered"].(bool); delivered {
			return nil
		}
		tx.Update(OutboxPath(id),
			docstore.SetField(true, "delivered"),
			docstore.SetField(nowFunc().UTC(), "delivered_at"),
		)
		marked = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return marked, nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	batchSize int
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.BookingMetrics) *Deliverer {
	d.metrics = m
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.EventID, "type", entry.EventType)
			d.metrics.ObserveOutbox(entry.EventType, "failed")
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.EventID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.EventID)
		} else if ok {
			delivered++
			d.metrics.ObserveOutbox(entry.EventType, "delivered")
			d.logger.Debug("outbox delivered", "event_id", entry.EventID, "type", entry.EventType)
		}
	}
	return delivered
}
