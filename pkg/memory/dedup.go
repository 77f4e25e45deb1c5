package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup fronts a Store with the check-before-create discipline plus a small
// LRU of recently written ids, so redelivery bursts skip the read entirely.
// The cache is an optimization only; the store remains the source of truth.
type Dedup struct {
	store Store
	seen  *lru.Cache[string, struct{}]
}

func NewDedup(store Store, cacheSize int) (*Dedup, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	seen, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}
	return &Dedup{store: store, seen: seen}, nil
}

// EnsureMemory stores m unless a Memory with the same derived id already
// exists. Returns true when this call created the record.
func (d *Dedup) EnsureMemory(ctx context.Context, m *Memory) (bool, error) {
	if m.ID == "" {
		return false, fmt.Errorf("memory without id")
	}
	if _, ok := d.seen.Get(m.ID); ok {
		return false, nil
	}
	existing, err := d.store.GetMemoryByID(ctx, m.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		d.seen.Add(m.ID, struct{}{})
		return false, nil
	}
	if err := d.store.CreateMemory(ctx, m); err != nil {
		return false, err
	}
	d.seen.Add(m.ID, struct{}{})
	return true, nil
}

func (d *Dedup) Store() Store {
	return d.store
}
