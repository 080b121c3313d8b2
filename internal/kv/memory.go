package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local runs, built
// the way the teacher's session store fakes an external backend: a
// mutex-guarded map keyed by the same composite key the real store uses,
// cloning items on the way out so callers can't mutate internal state.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Item // key = pk + "\x00" + sk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]*Item{}}
}

func key(pk, sk string) string { return pk + "\x00" + sk }

func cloneItem(it *Item) *Item {
	if it == nil {
		return nil
	}
	attrs := make(map[string]any, len(it.Attrs))
	for k, v := range it.Attrs {
		attrs[k] = v
	}
	return &Item{PK: it.PK, SK: it.SK, LSI1: it.LSI1, Attrs: attrs}
}

func (m *MemoryStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[key(pk, sk)]
	if !ok {
		return nil, &NotFoundError{PK: pk, SK: sk}
	}
	return cloneItem(it), nil
}

func (m *MemoryStore) Put(ctx context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key(item.PK, item.SK)] = cloneItem(item)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, pk, sk string, partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(pk, sk)
	it, ok := m.items[k]
	if !ok {
		it = &Item{PK: pk, SK: sk, Attrs: map[string]any{}}
		m.items[k] = it
	}
	for field, v := range partial {
		if field == "lsi1" {
			if s, ok := v.(string); ok {
				it.LSI1 = s
				continue
			}
		}
		it.Attrs[field] = v
	}
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, pk, sk, attr string, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(pk, sk)
	it, ok := m.items[k]
	if !ok {
		it = &Item{PK: pk, SK: sk, Attrs: map[string]any{}}
		m.items[k] = it
	}
	cur, _ := it.Attrs[attr].(float64)
	it.Attrs[attr] = cur + delta
	return nil
}

func (m *MemoryStore) TransactWrite(ctx context.Context, items []*Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[key(item.PK, item.SK)] = cloneItem(item)
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, pk string, opts QueryOptions) ([]*Item, error) {
	m.mu.RLock()
	var matched []*Item
	for _, it := range m.items {
		if it.PK == pk {
			matched = append(matched, cloneItem(it))
		}
	}
	m.mu.RUnlock()

	sortKey := func(it *Item) string {
		if opts.Index == "LSI1" {
			return it.LSI1
		}
		return it.SK
	}
	sort.Slice(matched, func(i, j int) bool {
		if opts.Reverse {
			return sortKey(matched[i]) > sortKey(matched[j])
		}
		return sortKey(matched[i]) < sortKey(matched[j])
	})

	if opts.After != "" {
		filtered := matched[:0:0]
		for _, it := range matched {
			if opts.Reverse {
				if sortKey(it) < opts.After {
					filtered = append(filtered, it)
				}
			} else if sortKey(it) > opts.After {
				filtered = append(filtered, it)
			}
		}
		matched = filtered
	}

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}
