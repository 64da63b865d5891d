// Package dedupe tracks keys with work in flight so the same work is not
// queued twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 10000

// Deduper records keys with pending work.
type Deduper interface {
	// SeenAndRecord reports whether key is already pending and records it if not.
	SeenAndRecord(ctx context.Context, key string) bool
	// Unrecord releases key once its work completed or could not be queued.
	Unrecord(ctx context.Context, key string)
	// Size returns the number of pending keys.
	Size() int64
}

// pendingSet is a mutex-guarded set ordered by insertion.
type pendingSet struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates an in-memory Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &pendingSet{
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *pendingSet) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.keys) >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.keys, oldest.Value.(string))
	}
	d.keys[key] = d.order.PushBack(key)
	return false
}

func (d *pendingSet) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		d.order.Remove(el)
		delete(d.keys, key)
	}
}

func (d *pendingSet) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.keys))
}
