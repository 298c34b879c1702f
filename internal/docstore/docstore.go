// Package docstore is the document store the booking core runs against.
//
// Documents live at slash separated paths ("doctors/doc1/days/2025-06-01") and
// carry a version number that increases on every committed write. Transactions
// record the version of everything they read or write; a backend commits the
// whole write set only if none of those versions moved, otherwise it reports
// ErrConflict and writes nothing.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict reports that a concurrent commit touched the transaction's read or write set.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrUnavailable reports a transient infrastructure failure.
	ErrUnavailable = errors.New("docstore: store unavailable")
	// ErrNotFound is returned by Update when the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrAlreadyExists is returned by Create when the document was read and exists.
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrInvalidPath rejects paths that do not name a document.
	ErrInvalidPath = errors.New("docstore: invalid document path")
)

// Path identifies a document: collection/id pairs joined by "/".
type Path string

// Doc joins segments into a document path.
func Doc(segments ...string) Path {
	return Path(strings.Join(segments, "/"))
}

// Valid reports whether the path names a document (even, non-empty segments).
func (p Path) Valid() bool {
	parts := strings.Split(string(p), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return false
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return false
		}
	}
	return true
}

// Collection returns the parent collection path.
func (p Path) Collection() string {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[:i]
	}
	return ""
}

// ID returns the last path segment.
func (p Path) ID() string {
	s := string(p)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (p Path) String() string { return string(p) }

// Snapshot is a point-in-time copy of a document. Version 0 means absent.
type Snapshot struct {
	Path    Path
	Data    map[string]any
	Version int64
}

// Exists reports whether the document was present when read.
func (s *Snapshot) Exists() bool {
	return s != nil && s.Version > 0
}

// DataTo decodes the document into v using its JSON field names.
func (s *Snapshot) DataTo(v any) error {
	if !s.Exists() {
		return fmt.Errorf("docstore: decode %s: %w", s.pathOrEmpty(), ErrNotFound)
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", s.Path, err)
	}
	return nil
}

func (s *Snapshot) pathOrEmpty() Path {
	if s == nil {
		return ""
	}
	return s.Path
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{Path: s.Path, Data: CloneData(s.Data), Version: s.Version}
}

// Filter is an equality match on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		if !equalValues(data[f.Field], want) {
			return false
		}
	}
	return true
}

// Check asserts that a document read by the transaction still has Version at commit.
type Check struct {
	Path    Path
	Version int64
}

// Write replaces a document, provided its current version equals Expected.
// The committed version becomes Expected+1.
type Write struct {
	Path     Path
	Data     map[string]any
	Expected int64
}

// NewVersion is the version the document carries after the write commits.
func (w Write) NewVersion() int64 {
	return w.Expected + 1
}

// Backend is the persistence contract: consistent point reads, an atomic
// conditional multi-document commit, and equality queries over a collection.
// Load returns a Snapshot with Version 0 for absent documents. Commit returns
// ErrConflict when any check or write expectation fails and must not apply a
// partial write set.
type Backend interface {
	Load(ctx context.Context, path Path) (*Snapshot, error)
	Commit(ctx context.Context, checks []Check, writes []Write) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Snapshot, error)
}

// Unavailable wraps a backend failure so callers can match ErrUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
