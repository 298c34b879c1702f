package docstore

import (
	"context"
	"sync"
)

// Feed carries "document changed" notifications between writers and live
// subscribers. Notifications carry no data; subscribers re-read the document.
type Feed interface {
	Publish(ctx context.Context, paths ...Path) error
	Subscribe(ctx context.Context, path Path) (<-chan struct{}, func(), error)
}

// MemoryFeed fans notifications out inside one process.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[Path]map[int]chan struct{}
}

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[Path]map[int]chan struct{})}
}

// Publish signals every subscriber of the given paths. Pending signals coalesce.
func (f *MemoryFeed) Publish(_ context.Context, paths ...Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		for _, ch := range f.subs[p] {
			Signal(ch)
		}
	}
	return nil
}

// Subscribe registers for notifications on path.
func (f *MemoryFeed) Subscribe(_ context.Context, path Path) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.subs[path] == nil {
		f.subs[path] = make(map[int]chan struct{})
	}
	f.subs[path][id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[path], id)
			if len(f.subs[path]) == 0 {
				delete(f.subs, path)
			}
			f.mu.Unlock()
		})
	}, nil
}

// Signal performs a non-blocking send on a coalescing notification channel.
func Signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
