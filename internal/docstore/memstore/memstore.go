// Package memstore is an in-process docstore backend for tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
)

type document struct {
	data    map[string]any
	version int64
}

// Backend keeps documents in a map; Commit is serialised by a mutex, which
// gives the same all-or-nothing, version-checked semantics as the remote
// backends.
type Backend struct {
	mu   sync.RWMutex
	docs map[docstore.Path]document
}

var _ docstore.Backend = (*Backend)(nil)

// New creates an empty backend.
func New() *Backend {
	return &Backend{docs: make(map[docstore.Path]document)}
}

// Load returns a copy of the document or an absent snapshot.
func (b *Backend) Load(ctx context.Context, path docstore.Path) (*docstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.docs[path]
	if !ok {
		return &docstore.Snapshot{Path: path}, nil
	}
	return &docstore.Snapshot{Path: path, Data: docstore.CloneData(doc.data), Version: doc.version}, nil
}

// Commit applies writes only if every check and write expectation holds.
func (b *Backend) Commit(ctx context.Context, checks []docstore.Check, writes []docstore.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range checks {
		if b.docs[c.Path].version != c.Version {
			return docstore.ErrConflict
		}
	}
	for _, w := range writes {
		if b.docs[w.Path].version != w.Expected {
			return docstore.ErrConflict
		}
	}
	for _, w := range writes {
		b.docs[w.Path] = document{data: docstore.CloneData(w.Data), version: w.NewVersion()}
	}
	return nil
}

// Query scans the collection in path order.
func (b *Backend) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*docstore.Snapshot
	for path, doc := range b.docs {
		if path.Collection() != collection || !docstore.Matches(doc.data, filters) {
			continue
		}
		out = append(out, &docstore.Snapshot{Path: path, Data: docstore.CloneData(doc.data), Version: doc.version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Len reports how many documents are stored.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}
