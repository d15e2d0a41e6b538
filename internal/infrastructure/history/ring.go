package history

import (
	"context"
	"sync"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// DefaultSize is used when the configured size is not positive
const DefaultSize = 100

// Ring keeps the most recent history entries in memory
type Ring struct {
	mu      sync.RWMutex
	entries []*entities.HistoryEntry
	next    int
	full    bool
}

// NewRing creates a ring holding at most size entries
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{entries: make([]*entities.HistoryEntry, size)}
}

// Add stores entry, evicting the oldest when full
func (r *Ring) Add(ctx context.Context, entry *entities.HistoryEntry) error {
	if entry == nil {
		return nil
	}
	cp := entry.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = cp
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// List returns up to limit entries, newest first
func (r *Ring) List(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.len()
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*entities.HistoryEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx].Clone())
	}
	return out, nil
}

// Get returns the entry with id
func (r *Ring) Get(ctx context.Context, id string) (*entities.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e != nil && e.ID == id {
			return e.Clone(), nil
		}
	}
	return nil, repository.ErrHistoryNotFound
}

func (r *Ring) len() int {
	if r.full {
		return len(r.entries)
	}
	return r.next
}
