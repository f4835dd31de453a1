package docstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore — хранилище документов в памяти процесса.
// Используется в тестах и при SA_STORE_BACKEND=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	// Порядок вставки, чтобы List был детерминированным.
	order    map[string][]string
	counters map[string]int64
	now      func() time.Time
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
		order:       make(map[string][]string),
		counters:    make(map[string]int64),
		now:         time.Now,
	}
}

// List возвращает копии документов в порядке вставки.
func (s *MemoryStore) List(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list", collection, err, nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	result := make([]Record, 0, len(docs))
	for _, id := range s.order[collection] {
		r := Record{ID: id, Fields: maps.Clone(docs[id])}
		if Matches(r, filters) {
			result = append(result, r)
		}
	}
	return result, nil
}

// CountWhere считает документы, удовлетворяющие фильтрам.
func (s *MemoryStore) CountWhere(ctx context.Context, collection string, filters ...Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrap("count", collection, err, nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for id, fields := range s.collections[collection] {
		if Matches(Record{ID: id, Fields: fields}, filters) {
			n++
		}
	}
	return n, nil
}

// GetByID возвращает копию документа.
func (s *MemoryStore) GetByID(ctx context.Context, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, wrap("get", collection, err, nil)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{ID: id, Fields: maps.Clone(fields)}, nil
}

// Create добавляет документ.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap("create", collection, err, nil)
	}
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return "", ErrDuplicate
	}
	docs[id] = stamp(fields, s.now(), true)
	s.order[collection] = append(s.order[collection], id)
	return id, nil
}

// Update сливает patch с документом.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return wrap("update", collection, err, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged := maps.Clone(fields)
	maps.Copy(merged, stamp(patch, s.now(), false))
	merged[FieldCreatedAt] = fields[FieldCreatedAt]
	s.collections[collection][id] = merged
	return nil
}

// Delete удаляет документ, отсутствие документа не ошибка.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return wrap("delete", collection, err, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return nil
	}
	delete(s.collections[collection], id)
	s.order[collection] = slices.DeleteFunc(s.order[collection], func(x string) bool { return x == id })
	return nil
}

// NextSequence увеличивает счётчик под эксклюзивной блокировкой.
func (s *MemoryStore) NextSequence(ctx context.Context, counter string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrap("sequence", counter, err, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[counter]++
	return s.counters[counter], nil
}
