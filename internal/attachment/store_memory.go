package attachment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps attachments testable without a database.
type InMemoryStore struct {
	mu          sync.RWMutex
	attachments map[int64]Attachment
	nextID      int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attachments: make(map[int64]Attachment)}
}

func (s *InMemoryStore) Create(_ context.Context, att *Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	att.ID = s.nextID
	att.UploadedAt = time.Now().UTC()
	s.attachments[att.ID] = *att
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id int64) (*Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if att, ok := s.attachments[id]; ok {
		out := att
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) ListByException(_ context.Context, exceptionID int64) ([]*Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Attachment
	for _, att := range s.attachments {
		if att.ExceptionID == exceptionID {
			copied := att
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
