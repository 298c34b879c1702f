// Package pgstore keeps documents in a Postgres table (see migrations) and
// commits transactions with row-level version predicates.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backend implements docstore.Backend on the documents table.
type Backend struct {
	db     db
	logger *logging.Logger
}

var _ docstore.Backend = (*Backend)(nil)

// New wraps a pgx pool (or anything with the same surface).
func New(db db, logger *logging.Logger) *Backend {
	if db == nil {
		panic("pgstore: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Backend{db: db, logger: logger}
}

// Load reads one document.
func (b *Backend) Load(ctx context.Context, path docstore.Path) (*docstore.Snapshot, error) {
	var (
		raw     []byte
		version int64
	)
	err := b.db.QueryRow(ctx, `SELECT data, version FROM documents WHERE path = $1`, path.String()).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return &docstore.Snapshot{Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load %s: %w", path, err)
	}
	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load %s: %w", path, err)
	}
	return &docstore.Snapshot{Path: path, Data: data, Version: version}, nil
}

// Commit verifies read versions under FOR SHARE locks, then applies each write
// with a version predicate. Any predicate miss rolls the whole set back.
func (b *Backend) Commit(ctx context.Context, checks []docstore.Check, writes []docstore.Write) error {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range checks {
		var version int64
		err := tx.QueryRow(ctx, `SELECT version FROM documents WHERE path = $1 FOR SHARE`, c.Path.String()).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			version = 0
		} else if err != nil {
			return b.mapErr("check "+c.Path.String(), err)
		}
		if version != c.Version {
			return docstore.ErrConflict
		}
	}

	for _, w := range writes {
		data := w.Data
		if data == nil {
			data = map[string]any{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("pgstore: encode %s: %w", w.Path, err)
		}
		var tag pgconn.CommandTag
		if w.Expected == 0 {
			tag, err = tx.Exec(ctx, `
				INSERT INTO documents (path, collection, data, version)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (path) DO NOTHING
			`, w.Path.String(), w.Path.Collection(), raw, w.NewVersion())
		} else {
			tag, err = tx.Exec(ctx, `
				UPDATE documents
				SET data = $2, version = $3, updated_at = now()
				WHERE path = $1 AND version = $4
			`, w.Path.String(), raw, w.NewVersion(), w.Expected)
		}
		if err != nil {
			return b.mapErr("write "+w.Path.String(), err)
		}
		if tag.RowsAffected() == 0 {
			return docstore.ErrConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return b.mapErr("commit", err)
	}
	return nil
}

// Query filters the collection with JSONB containment.
func (b *Backend) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Snapshot, error) {
	match := make(map[string]any, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	contains, err := json.Marshal(match)
	if err != nil {
		return nil, fmt.Errorf("pgstore: encode filters: %w", err)
	}
	rows, err := b.db.Query(ctx, `
		SELECT path, data, version
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY path
	`, collection, string(contains))
	if err != nil {
		return nil, fmt.Errorf("pgstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []*docstore.Snapshot
	for rows.Next() {
		var (
			path    string
			raw     []byte
			version int64
		)
		if err := rows.Scan(&path, &raw, &version); err != nil {
			return nil, fmt.Errorf("pgstore: scan %s: %w", collection, err)
		}
		data, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("pgstore: decode %s: %w", path, err)
		}
		if !docstore.Matches(data, filters) {
			continue
		}
		out = append(out, &docstore.Snapshot{Path: docstore.Path(path), Data: data, Version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: query %s: %w", collection, err)
	}
	return out, nil
}

func (b *Backend) mapErr(op string, err error) error {
	if isConflict(err) {
		b.logger.Debug("pgstore: serialization conflict", "op", op, "error", err)
		return docstore.ErrConflict
	}
	return fmt.Errorf("pgstore: %s: %w", op, err)
}

// isConflict reports serialization failures, deadlocks and unique violations,
// all of which mean another writer got there first.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

func decode(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
