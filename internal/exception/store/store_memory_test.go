package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ems/internal/audit"
	"ems/internal/exception/models"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newException(title string) *models.Exception {
	exc := &models.Exception{TypeID: 1, Title: title, Status: models.StatusNew}
	s.Require().NoError(s.store.CreateException(s.ctx, exc))
	return exc
}

func (s *MemoryStoreSuite) TestCreateAssignsSequentialIDs() {
	first := s.newException("a")
	second := s.newException("b")
	s.Equal(first.ID+1, second.ID)
	s.False(first.CreatedAt.IsZero())
}

func (s *MemoryStoreSuite) TestGetReturnsCopy() {
	exc := s.newException("a")

	got, err := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(err)
	got.Title = "mutated"

	again, err := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(err)
	s.Equal("a", again.Title, "callers must not reach the stored row")
}

func (s *MemoryStoreSuite) TestGetUnknownID() {
	_, err := s.store.GetException(s.ctx, 999)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpdateUnknownID() {
	err := s.store.UpdateException(s.ctx, &models.Exception{ID: 999})
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestListFiltersAndOrdersNewestFirst() {
	first := s.newException("a")
	second := s.newException("b")
	second.Status = models.StatusTriaged
	s.Require().NoError(s.store.UpdateException(s.ctx, second))

	all, err := s.store.ListExceptions(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.ID, all[0].ID)
	s.Equal(first.ID, all[1].ID)

	triaged := models.StatusTriaged
	filtered, err := s.store.ListExceptions(s.ctx, models.ListFilter{Status: &triaged})
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal(second.ID, filtered[0].ID)
}

func (s *MemoryStoreSuite) TestListOverdueExcludesTerminalAndEscalated() {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	overdueExc := s.newException("overdue")
	overdueExc.DueAt = &past
	s.Require().NoError(s.store.UpdateException(s.ctx, overdueExc))

	for _, status := range append(append([]models.Status(nil), models.SweepTerminal...), models.StatusEscalated) {
		exc := s.newException("excluded")
		exc.DueAt = &past
		exc.Status = status
		s.Require().NoError(s.store.UpdateException(s.ctx, exc))
	}

	ids, err := s.store.ListOverdueIDs(s.ctx, now)
	s.Require().NoError(err)
	s.Equal([]int64{overdueExc.ID}, ids)
}

func (s *MemoryStoreSuite) TestRunInTxRollsBackOnError() {
	exc := s.newException("a")
	tx := NewInMemoryTx(s.store)

	boom := errors.New("boom")
	err := tx.RunInTx(s.ctx, func(st Store) error {
		row, err := st.GetException(s.ctx, exc.ID)
		s.Require().NoError(err)
		row.Status = models.StatusTriaged
		s.Require().NoError(st.UpdateException(s.ctx, row))
		s.Require().NoError(st.AppendAudit(s.ctx, &audit.Event{
			Action:     audit.ActionStatusChanged,
			EntityType: audit.EntityException,
			EntityID:   exc.ID,
		}))
		return boom
	})
	s.Require().ErrorIs(err, boom)

	// Neither the status write nor the audit row survives.
	current, getErr := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(getErr)
	s.Equal(models.StatusNew, current.Status)

	events, listErr := s.store.ListAuditByEntity(s.ctx, audit.EntityException, exc.ID)
	s.Require().NoError(listErr)
	s.Empty(events)
}

func (s *MemoryStoreSuite) TestRunInTxCommitsOnSuccess() {
	exc := s.newException("a")
	tx := NewInMemoryTx(s.store)

	err := tx.RunInTx(s.ctx, func(st Store) error {
		row, err := st.GetException(s.ctx, exc.ID)
		if err != nil {
			return err
		}
		row.Status = models.StatusTriaged
		return st.UpdateException(s.ctx, row)
	})
	s.Require().NoError(err)

	current, err := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusTriaged, current.Status)
}

func (s *MemoryStoreSuite) TestApprovalsAreAppendOnly() {
	exc := s.newException("a")
	approver := int64(5)
	for range 2 {
		s.Require().NoError(s.store.AddApproval(s.ctx, &models.Approval{
			ExceptionID: exc.ID,
			Level:       1,
			ApproverID:  &approver,
			Decision:    models.DecisionApproved,
		}))
	}
	approvals, err := s.store.ListApprovals(s.ctx, exc.ID)
	s.Require().NoError(err)
	s.Len(approvals, 2)
}
