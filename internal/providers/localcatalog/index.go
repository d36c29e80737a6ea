package localcatalog

import (
	"context"
	"sync"
	"time"

	"mediasearch/searchservice/internal/domain"
	"mediasearch/searchservice/internal/metrics"
)

// emptyRecheck spaces out store reads while no snapshot exists, so a snapshot
// written by another replica is picked up without a read per search.
const emptyRecheck = 30 * time.Second

// Index serves catalog entries from memory. A cold index loads once from the
// store; failed loads are retried on the next call and an empty store is
// checked again after emptyRecheck.
type Index struct {
	store Store
	now   func() time.Time

	mu      sync.RWMutex
	entries []domain.CatalogEntry
	loaded  bool
	emptyAt time.Time
}

func NewIndex(store Store) *Index {
	return &Index{store: store, now: time.Now}
}

func (i *Index) Entries(ctx context.Context) ([]domain.CatalogEntry, error) {
	i.mu.RLock()
	if i.loaded {
		entries := i.entries
		i.mu.RUnlock()
		return entries, nil
	}
	i.mu.RUnlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.loaded {
		return i.entries, nil
	}
	if i.store == nil {
		i.loaded = true
		return i.entries, nil
	}
	if !i.emptyAt.IsZero() && i.now().Sub(i.emptyAt) < emptyRecheck {
		return i.entries, nil
	}
	entries, err := i.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		i.emptyAt = i.now()
		return nil, nil
	}
	i.entries = entries
	i.loaded = true
	metrics.CatalogEntries.Set(float64(len(entries)))
	return entries, nil
}

// Replace swaps the whole index. Readers holding the previous slice keep a
// consistent view.
func (i *Index) Replace(entries []domain.CatalogEntry) {
	i.mu.Lock()
	i.entries = entries
	i.loaded = true
	i.mu.Unlock()
	metrics.CatalogEntries.Set(float64(len(entries)))
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}
