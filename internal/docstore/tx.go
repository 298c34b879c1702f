package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var errReadAfterWrite = errors.New("docstore: transaction reads must precede writes")

type opKind int

const (
	opCreate opKind = iota
	opSet
	opMerge
	opUpdate
)

type op struct {
	kind opKind
	path Path
	data map[string]any
	muts []Mutation
}

// Tx buffers reads and writes for one transaction attempt. Reads go straight to
// the backend and are remembered with their version; writes are applied only
// at commit. All reads must happen before the first write.
type Tx struct {
	backend Backend
	reads   map[Path]*Snapshot
	ops     []op
	err     error
}

func newTx(backend Backend) *Tx {
	return &Tx{backend: backend, reads: make(map[Path]*Snapshot)}
}

// Get reads a document and adds it to the transaction's read set.
func (t *Tx) Get(ctx context.Context, path Path) (*Snapshot, error) {
	if !path.Valid() {
		return nil, fmt.Errorf("docstore: get %q: %w", path, ErrInvalidPath)
	}
	if len(t.ops) > 0 {
		return nil, errReadAfterWrite
	}
	if snap, ok := t.reads[path]; ok {
		return snap.Clone(), nil
	}
	snap, err := t.backend.Load(ctx, path)
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("docstore: get %s", path), err)
	}
	snap.Path = path
	t.reads[path] = snap.Clone()
	return snap, nil
}

// Create writes a new document; the commit conflicts if it already exists.
func (t *Tx) Create(path Path, v any) {
	data, err := Encode(v)
	t.record(op{kind: opCreate, path: path, data: data}, err)
}

// Set replaces the whole document.
func (t *Tx) Set(path Path, v any) {
	data, err := Encode(v)
	t.record(op{kind: opSet, path: path, data: data}, err)
}

// Merge applies field mutations, creating the document if needed and keeping
// every field the mutations do not name.
func (t *Tx) Merge(path Path, muts ...Mutation) {
	t.record(op{kind: opMerge, path: path, muts: muts}, nil)
}

// Update applies field mutations to an existing document.
func (t *Tx) Update(path Path, muts ...Mutation) {
	t.record(op{kind: opUpdate, path: path, muts: muts}, nil)
}

func (t *Tx) record(o op, err error) {
	if t.err != nil {
		return
	}
	if err != nil {
		t.err = err
		return
	}
	if !o.path.Valid() {
		t.err = fmt.Errorf("docstore: write %q: %w", o.path, ErrInvalidPath)
		return
	}
	t.ops = append(t.ops, o)
}

// Written returns the distinct paths the transaction writes, sorted.
func (t *Tx) Written() []Path {
	seen := make(map[Path]struct{})
	var out []Path
	for _, o := range t.ops {
		if _, ok := seen[o.path]; ok {
			continue
		}
		seen[o.path] = struct{}{}
		out = append(out, o.path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// prepare resolves buffered operations into version checks and full-document writes.
func (t *Tx) prepare(ctx context.Context) ([]Check, []Write, error) {
	if t.err != nil {
		return nil, nil, t.err
	}
	type pending struct {
		base    *Snapshot
		current map[string]any
		exists  bool
	}
	states := make(map[Path]*pending)
	var order []Path

	for _, o := range t.ops {
		st, ok := states[o.path]
		if !ok {
			base, read := t.reads[o.path]
			if !read && o.kind != opCreate {
				loaded, err := t.backend.Load(ctx, o.path)
				if err != nil {
					return nil, nil, Unavailable(fmt.Sprintf("docstore: load %s", o.path), err)
				}
				base = loaded
			}
			if base == nil {
				base = &Snapshot{Path: o.path}
			}
			st = &pending{base: base, current: CloneData(base.Data), exists: base.Exists()}
			states[o.path] = st
			order = append(order, o.path)
		}

		switch o.kind {
		case opCreate:
			if st.exists {
				return nil, nil, fmt.Errorf("docstore: create %s: %w", o.path, ErrAlreadyExists)
			}
			st.current = CloneData(o.data)
		case opSet:
			st.current = CloneData(o.data)
		case opMerge:
			next, err := applyMutations(st.current, o.muts)
			if err != nil {
				return nil, nil, err
			}
			st.current = next
		case opUpdate:
			if !st.exists {
				return nil, nil, fmt.Errorf("docstore: update %s: %w", o.path, ErrNotFound)
			}
			next, err := applyMutations(st.current, o.muts)
			if err != nil {
				return nil, nil, err
			}
			st.current = next
		}
		st.exists = true
	}

	writes := make([]Write, 0, len(order))
	for _, p := range order {
		st := states[p]
		writes = append(writes, Write{Path: p, Data: st.current, Expected: st.base.Version})
	}

	var checks []Check
	for p, snap := range t.reads {
		if _, written := states[p]; written {
			continue
		}
		checks = append(checks, Check{Path: p, Version: snap.Version})
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Path < checks[j].Path })
	return checks, writes, nil
}
