package user

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps the directory testable without a database.
type InMemoryStore struct {
	mu     sync.RWMutex
	users  map[int64]User
	nextID int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[int64]User)}
}

func (s *InMemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	s.nextID++
	u.ID = s.nextID
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		copied := u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
