// Package dedupe tracks which history events have already been accepted so
// that retried submissions are persisted at most once.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"

	"github.com/okian/restwell/internal/domain/model"
)

const defaultMaxSize = 50000

// Deduper records seen event keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if
	// not. It returns true for a duplicate.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the event can be retried, e.g. after the
	// ingestion queue rejected it.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key builds the dedupe key of a history event. IDs are scoped per user and
// per kind, so two users (or a reading and a record) may share an ID. The
// user ID is length-prefixed because it may itself contain ':'.
func Key(ev model.HistoryEvent) string {
	user := ev.UserID()
	return ev.Kind.String() + ":" + strconv.Itoa(len(user)) + ":" + user + ":" + ev.ID
}

// inMemoryDeduper keeps the most recent keys in insertion order. When bounded
// it evicts the oldest key first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int // <= 0 means unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
