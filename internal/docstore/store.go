package docstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

// RetryPolicy bounds how often a transaction is re-run after a conflict or a
// transient failure.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns three attempts with 50ms exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}

// TxFunc is the body of a transaction. It runs once per attempt and must not
// have side effects outside the Tx.
type TxFunc func(ctx context.Context, tx *Tx) error

// Store runs optimistic transactions against a Backend and fans out change
// notifications to subscribers.
type Store struct {
	backend Backend
	feed    Feed
	policy  RetryPolicy
	timeout time.Duration
	logger  *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithFeed replaces the in-process change feed.
func WithFeed(feed Feed) Option {
	return func(s *Store) {
		if feed != nil {
			s.feed = feed
		}
	}
}

// WithRetryPolicy sets the transaction retry budget.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		s.policy = p
	}
}

// WithTimeout bounds every transaction attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithLogger sets the store logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store over backend.
func New(backend Backend, opts ...Option) *Store {
	if backend == nil {
		panic("docstore: backend required")
	}
	s := &Store{
		backend: backend,
		feed:    NewMemoryFeed(),
		policy:  DefaultRetryPolicy(),
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get performs a consistent point read outside any transaction.
func (s *Store) Get(ctx context.Context, path Path) (*Snapshot, error) {
	if !path.Valid() {
		return nil, fmt.Errorf("docstore: get %q: %w", path, ErrInvalidPath)
	}
	snap, err := s.backend.Load(ctx, path)
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("docstore: get %s", path), err)
	}
	snap.Path = path
	return snap, nil
}

// Query returns the documents of a collection matching every filter.
func (s *Store) Query(ctx context.Context, collection string, filters ...Filter) ([]*Snapshot, error) {
	snaps, err := s.backend.Query(ctx, collection, filters...)
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("docstore: query %s", collection), err)
	}
	return snaps, nil
}

// RunTransaction runs fn until it commits, fn returns its own error, or the
// retry budget is spent. ErrConflict and ErrUnavailable are retried with
// backoff; any other error from fn is returned unchanged without a retry.
func (s *Store) RunTransaction(ctx context.Context, fn TxFunc) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("docstore: transaction: %w: %w", ErrUnavailable, err)
		}
		written, err := s.attempt(ctx, fn)
		if err == nil {
			s.publish(ctx, written)
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt >= s.policy.MaxAttempts {
			break
		}
		s.logger.Debug("docstore: retrying transaction", "attempt", attempt, "error", err)
		if err := sleep(ctx, s.policy.delay(attempt)); err != nil {
			return fmt.Errorf("docstore: transaction: %w: %w", ErrUnavailable, err)
		}
	}
	return lastErr
}

func (s *Store) attempt(ctx context.Context, fn TxFunc) ([]Path, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tx := newTx(s.backend)
	if err := fn(ctx, tx); err != nil {
		return nil, err
	}
	checks, writes, err := tx.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if len(writes) == 0 {
		return nil, nil
	}
	if err := s.backend.Commit(ctx, checks, writes); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		// The commit may have landed. Subscribers re-read and skip unchanged
		// versions, so a spurious notification is harmless.
		s.publish(ctx, tx.Written())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("docstore: commit: %w: %w", ErrUnavailable, ctxErr)
		}
		return nil, Unavailable("docstore: commit", err)
	}
	return tx.Written(), nil
}

func (s *Store) publish(ctx context.Context, paths []Path) {
	if len(paths) == 0 || s.feed == nil {
		return
	}
	if err := s.feed.Publish(context.WithoutCancel(ctx), paths...); err != nil {
		s.logger.Warn("docstore: change notification failed", "paths", len(paths), "error", err)
	}
}

// Subscribe delivers the current document and every later committed version
// to onChange until ctx is done or the returned stop function is called.
// Feed or read failures are reported through onChange with a nil snapshot.
func (s *Store) Subscribe(ctx context.Context, path Path, onChange func(*Snapshot, error)) (func(), error) {
	if !path.Valid() {
		return nil, fmt.Errorf("docstore: subscribe %q: %w", path, ErrInvalidPath)
	}
	ctx, cancel := context.WithCancel(ctx)
	notify, unsubscribe, err := s.feed.Subscribe(ctx, path)
	if err != nil {
		cancel()
		return nil, Unavailable(fmt.Sprintf("docstore: subscribe %s", path), err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()
		var lastVersion int64 = -1
		deliver := func() {
			snap, err := s.Get(ctx, path)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				lastVersion = -1
				onChange(nil, err)
				return
			}
			if snap.Version == lastVersion {
				return
			}
			lastVersion = snap.Version
			onChange(snap, nil)
		}
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notify:
				if !ok {
					if ctx.Err() == nil {
						onChange(nil, fmt.Errorf("docstore: subscription %s closed: %w", path, ErrUnavailable))
					}
					return
				}
				deliver()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// Close releases the feed if it holds resources.
func (s *Store) Close() error {
	if closer, ok := s.feed.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
