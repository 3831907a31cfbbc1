package exceptiontype

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps the catalog testable without a database.
type InMemoryStore struct {
	mu     sync.RWMutex
	types  map[int64]ExceptionType
	nextID int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{types: make(map[int64]ExceptionType)}
}

func (s *InMemoryStore) Create(_ context.Context, et *ExceptionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.types {
		if existing.Code == et.Code {
			return ErrDuplicateCode
		}
	}
	s.nextID++
	et.ID = s.nextID
	now := time.Now().UTC()
	et.CreatedAt = now
	et.UpdatedAt = now
	s.types[et.ID] = *et
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id int64) (*ExceptionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if et, ok := s.types[id]; ok {
		out := et
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context) ([]*ExceptionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ExceptionType, 0, len(s.types))
	for _, et := range s.types {
		copied := et
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
