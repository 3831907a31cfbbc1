package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ems/internal/audit"
	"ems/internal/exception/models"
)

// InMemoryStore keeps the engine testable without a database. It favors
// clarity over performance.
type InMemoryStore struct {
	mu         sync.RWMutex
	exceptions map[int64]models.Exception
	approvals  []models.Approval
	audits     []audit.Event

	nextExceptionID int64
	nextApprovalID  int64
	nextAuditID     int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{exceptions: make(map[int64]models.Exception)}
}

func (s *InMemoryStore) GetException(_ context.Context, id int64) (*models.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if exc, ok := s.exceptions[id]; ok {
		out := exc
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) CreateException(_ context.Context, exc *models.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextExceptionID++
	exc.ID = s.nextExceptionID
	now := time.Now().UTC()
	exc.CreatedAt = now
	exc.UpdatedAt = now
	s.exceptions[exc.ID] = *exc
	return nil
}

func (s *InMemoryStore) UpdateException(_ context.Context, exc *models.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exceptions[exc.ID]; !ok {
		return ErrNotFound
	}
	exc.UpdatedAt = time.Now().UTC()
	s.exceptions[exc.ID] = *exc
	return nil
}

func (s *InMemoryStore) ListExceptions(_ context.Context, filter models.ListFilter) ([]*models.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Exception
	for _, exc := range s.exceptions {
		if filter.Status != nil && exc.Status != *filter.Status {
			continue
		}
		if filter.TypeID != nil && exc.TypeID != *filter.TypeID {
			continue
		}
		copied := exc
		out = append(out, &copied)
	}
	// Newest first, matching the list endpoint's contract.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemoryStore) ListOverdueIDs(_ context.Context, now time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, exc := range s.exceptions {
		if overdue(&exc, now) {
			ids = append(ids, exc.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func overdue(exc *models.Exception, now time.Time) bool {
	if exc.DueAt == nil || !exc.DueAt.Before(now) {
		return false
	}
	if exc.Status == models.StatusEscalated {
		return false
	}
	for _, terminal := range models.SweepTerminal {
		if exc.Status == terminal {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) AddApproval(_ context.Context, approval *models.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextApprovalID++
	approval.ID = s.nextApprovalID
	approval.CreatedAt = time.Now().UTC()
	s.approvals = append(s.approvals, *approval)
	return nil
}

func (s *InMemoryStore) ListApprovals(_ context.Context, exceptionID int64) ([]*models.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Approval
	for i := range s.approvals {
		if s.approvals[i].ExceptionID == exceptionID {
			copied := s.approvals[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AppendAudit(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuditID++
	event.ID = s.nextAuditID
	s.audits = append(s.audits, *event)
	return nil
}

func (s *InMemoryStore) ListAuditByEntity(_ context.Context, entityType string, entityID int64) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Event
	for i := range s.audits {
		if s.audits[i].EntityType == entityType && s.audits[i].EntityID == entityID {
			copied := s.audits[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

// InMemoryTx serializes read-modify-write sequences with a coarse lock and
// restores a snapshot when fn fails, so a torn write can never be observed.
type InMemoryTx struct {
	mu    sync.Mutex
	store *InMemoryStore
}

func NewInMemoryTx(store *InMemoryStore) *InMemoryTx {
	return &InMemoryTx{store: store}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.store.snapshot()
	if err := fn(t.store); err != nil {
		t.store.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	exceptions      map[int64]models.Exception
	approvals       []models.Approval
	audits          []audit.Event
	nextExceptionID int64
	nextApprovalID  int64
	nextAuditID     int64
}

func (s *InMemoryStore) snapshot() memorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exceptions := make(map[int64]models.Exception, len(s.exceptions))
	for id, exc := range s.exceptions {
		exceptions[id] = exc
	}
	return memorySnapshot{
		exceptions:      exceptions,
		approvals:       append([]models.Approval(nil), s.approvals...),
		audits:          append([]audit.Event(nil), s.audits...),
		nextExceptionID: s.nextExceptionID,
		nextApprovalID:  s.nextApprovalID,
		nextAuditID:     s.nextAuditID,
	}
}

func (s *InMemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = snap.exceptions
	s.approvals = snap.approvals
	s.audits = snap.audits
	s.nextExceptionID = snap.nextExceptionID
	s.nextApprovalID = snap.nextApprovalID
	s.nextAuditID = snap.nextAuditID
}
