package storage

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/query"
)

// IndexFunc derives the lookup id a stored item is filed under.
type IndexFunc func(item any) string

var (
	memoryGetValidator  = query.Has("id").As(query.Type[string]()).MustBuild()
	memoryManyValidator = query.Has("ids").As(query.Type[[]string]()).MustBuild()
)

// MemoryStore is an in-memory dual-role element: it accepts every type it
// provides, making it the usual first cache tier of a pipeline. Items are
// filed per type under the id produced by that type's IndexFunc and looked
// up by the "id" (or "ids") query key.
type MemoryStore struct {
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[domain.Key]*memoryTable
	types  domain.TypeSet
}

type memoryTable struct {
	index IndexFunc
	items map[string]any
}

// NewMemoryStore creates a store for the given types. The index map fixes
// the store's declared type set; it is not extended later.
func NewMemoryStore(indexes map[domain.Key]IndexFunc, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	tables := make(map[domain.Key]*memoryTable, len(indexes))
	keys := make([]domain.Key, 0, len(indexes))
	for key, index := range indexes {
		tables[key] = &memoryTable{index: index, items: make(map[string]any)}
		keys = append(keys, key)
	}
	return &MemoryStore{
		logger: logger,
		tables: tables,
		types:  domain.NewTypeSet(keys...),
	}
}

// Provides declares the store's types.
func (s *MemoryStore) Provides() domain.TypeSet { return s.types }

// Accepts declares the store's types.
func (s *MemoryStore) Accepts() domain.TypeSet { return s.types }

// Get looks up the item filed under the query's "id".
func (s *MemoryStore) Get(_ context.Context, key domain.Key, q domain.Query, pctx *domain.Context) (any, error) {
	table, ok := s.tables[key]
	if !ok {
		return nil, domain.UnsupportedType(key)
	}
	if err := memoryGetValidator.Validate(q, pctx); err != nil {
		return nil, err
	}

	id := q["id"].(string)
	s.mu.RLock()
	item, ok := table.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound(key)
	}
	return item, nil
}

// GetMany yields the items filed under the query's "ids", in order. Ids with
// no item are skipped; a query matching nothing at all is not found.
func (s *MemoryStore) GetMany(_ context.Context, key domain.Key, q domain.Query, pctx *domain.Context) (iter.Seq2[any, error], error) {
	table, ok := s.tables[key]
	if !ok {
		return nil, domain.UnsupportedType(key)
	}
	if err := memoryManyValidator.Validate(q, pctx); err != nil {
		return nil, err
	}

	ids := q["ids"].([]string)
	s.mu.RLock()
	found := make([]any, 0, len(ids))
	for _, id := range ids {
		if item, ok := table.items[id]; ok {
			found = append(found, item)
		}
	}
	s.mu.RUnlock()

	if len(found) == 0 {
		return nil, domain.NotFound(key)
	}
	return func(yield func(any, error) bool) {
		for _, item := range found {
			if !yield(item, nil) {
				return
			}
		}
	}, nil
}

// Put files the item under its index id, replacing any previous item.
func (s *MemoryStore) Put(_ context.Context, key domain.Key, item any, _ *domain.Context) error {
	table, ok := s.tables[key]
	if !ok {
		return domain.UnsupportedType(key)
	}
	id := table.index(item)
	s.mu.Lock()
	table.items[id] = item
	s.mu.Unlock()
	s.logger.Debug("memory store put", "type", key, "id", id)
	return nil
}

// PutMany files every item of the sequence.
func (s *MemoryStore) PutMany(ctx context.Context, key domain.Key, items iter.Seq[any], pctx *domain.Context) error {
	if _, ok := s.tables[key]; !ok {
		return domain.UnsupportedType(key)
	}
	for item := range items {
		if err := s.Put(ctx, key, item, pctx); err != nil {
			return err
		}
	}
	return nil
}

// Len reports how many items are filed for the type.
func (s *MemoryStore) Len(key domain.Key) int {
	table, ok := s.tables[key]
	if !ok {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(table.items)
}
