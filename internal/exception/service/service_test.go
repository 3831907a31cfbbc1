package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ems/internal/audit"
	"ems/internal/exception/models"
	"ems/internal/exception/store"
	dErrors "ems/pkg/domain-errors"
)

var fixedNow = time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)

// staticCatalog serves a single known type id.
type staticCatalog struct {
	id   int64
	info TypeInfo
}

func (c staticCatalog) GetType(_ context.Context, id int64) (TypeInfo, error) {
	if id != c.id {
		return TypeInfo{}, dErrors.New(dErrors.CodeNotFound, "exception type not found")
	}
	return c.info, nil
}

type LifecycleSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.InMemoryStore
	service   *Service
	forwarded []*audit.Event
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemoryStore()
	s.forwarded = nil

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return fixedNow }
	catalog := staticCatalog{id: 1, info: TypeInfo{DefaultSLAHours: 48, ApprovalLevels: 1}}

	s.service = New(store.NewInMemoryTx(s.store), s.store, catalog, audit.NewRecorder(clock), nil, logger)
	s.service.SetClock(clock)
	s.service.SetForwarder(func(e *audit.Event) { s.forwarded = append(s.forwarded, e) })
}

func (s *LifecycleSuite) create(in CreateInput) *models.Exception {
	s.T().Helper()
	exc, err := s.service.Create(s.ctx, in)
	s.Require().NoError(err)
	return exc
}

func (s *LifecycleSuite) createWithStatus(status models.Status) *models.Exception {
	s.T().Helper()
	exc := s.create(CreateInput{TypeID: 1, Title: "case"})
	exc.Status = status
	s.Require().NoError(s.store.UpdateException(s.ctx, exc))
	return exc
}

func (s *LifecycleSuite) auditTrail(id int64) []*audit.Event {
	s.T().Helper()
	events, err := s.store.ListAuditByEntity(s.ctx, audit.EntityException, id)
	s.Require().NoError(err)
	return events
}

func (s *LifecycleSuite) TestCreateDefaultsDeadlineFromType() {
	exc := s.create(CreateInput{TypeID: 1, Title: "limit breach"})

	s.Equal(models.StatusNew, exc.Status)
	s.Require().NotNil(exc.DueAt)
	s.Equal(fixedNow.Add(48*time.Hour), *exc.DueAt)
	s.Empty(s.auditTrail(exc.ID), "creation is not audited")
}

func (s *LifecycleSuite) TestCreateKeepsCallerDeadline() {
	due := fixedNow.Add(2 * time.Hour)
	exc := s.create(CreateInput{TypeID: 1, Title: "limit breach", DueAt: &due})
	s.Require().NotNil(exc.DueAt)
	s.Equal(due, *exc.DueAt)
}

func (s *LifecycleSuite) TestCreateUnknownTypeLeavesDeadlineUnset() {
	exc := s.create(CreateInput{TypeID: 99, Title: "orphan type"})
	s.Nil(exc.DueAt)
}

func (s *LifecycleSuite) TestCreateValidation() {
	_, err := s.service.Create(s.ctx, CreateInput{TypeID: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Create(s.ctx, CreateInput{Title: "no type"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LifecycleSuite) TestTransitionHappyPath() {
	exc := s.create(CreateInput{TypeID: 1, Title: "case"})
	actor := int64(7)
	comment := "picked up"

	updated, err := s.service.Transition(s.ctx, exc.ID, "IN_PROGRESS", &actor, &comment)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, updated.Status)

	events := s.auditTrail(exc.ID)
	s.Require().Len(events, 1)
	ev := events[0]
	s.Equal(audit.ActionStatusChanged, ev.Action)
	s.Require().NotNil(ev.ActorID)
	s.Equal(actor, *ev.ActorID)

	var oldSnap, newSnap audit.StatusSnapshot
	s.Require().NoError(json.Unmarshal(ev.Old, &oldSnap))
	s.Require().NoError(json.Unmarshal(ev.New, &newSnap))
	s.Equal("NEW", oldSnap.Status)
	s.Equal("IN_PROGRESS", newSnap.Status)
	s.Require().NotNil(newSnap.Comment)
	s.Equal(comment, *newSnap.Comment)

	s.Len(s.forwarded, 1)
}

func (s *LifecycleSuite) TestTransitionUnknownStatusCheckedBeforeLookup() {
	// An unrecognized name fails as InvalidStatus even when the id does not
	// exist.
	_, err := s.service.Transition(s.ctx, 12345, "DONE", nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidStatus))
}

func (s *LifecycleSuite) TestTransitionNotFound() {
	_, err := s.service.Transition(s.ctx, 12345, "TRIAGED", nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) TestTransitionIllegalEdgeLeavesNoTrace() {
	exc := s.create(CreateInput{TypeID: 1, Title: "case"})

	_, err := s.service.Transition(s.ctx, exc.ID, "CLOSED", nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	current, getErr := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(getErr)
	s.Equal(models.StatusNew, current.Status)
	s.Empty(s.auditTrail(exc.ID))
	s.Empty(s.forwarded)
}

func (s *LifecycleSuite) TestNothingLeavesClosed() {
	exc := s.createWithStatus(models.StatusClosed)
	for _, target := range models.AllStatuses() {
		_, err := s.service.Transition(s.ctx, exc.ID, string(target), nil, nil)
		s.Truef(dErrors.HasCode(err, dErrors.CodeIllegalTransition), "CLOSED -> %s", target)
	}
}

func (s *LifecycleSuite) TestEscalationTimestampSurvivesLaterMoves() {
	exc := s.createWithStatus(models.StatusEscalated)
	s.Nil(exc.EscalatedAt)

	// Move away from ESCALATED and back in again via the sweeper-independent
	// interactive path.
	updated, err := s.service.Transition(s.ctx, exc.ID, "IN_PROGRESS", nil, nil)
	s.Require().NoError(err)
	s.Nil(updated.EscalatedAt)

	// IN_PROGRESS has no edge to ESCALATED, so drive the escalation stamp via
	// EscalateOverdue.
	due := fixedNow.Add(-time.Hour)
	updated.DueAt = &due
	s.Require().NoError(s.store.UpdateException(s.ctx, updated))
	escalated, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
	s.Require().NoError(err)
	s.Require().True(escalated)

	current, err := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(err)
	s.Require().NotNil(current.EscalatedAt)
	stamp := *current.EscalatedAt

	// Leaving ESCALATED afterwards must not clear the stamp.
	updated, err = s.service.Transition(s.ctx, exc.ID, "AWAITING_APPROVAL", nil, nil)
	s.Require().NoError(err)
	s.Require().NotNil(updated.EscalatedAt)
	s.Equal(stamp, *updated.EscalatedAt)
}

func (s *LifecycleSuite) TestSelfApprovalRejectedRegardlessOfStatusAndDecision() {
	maker := int64(1)
	for _, status := range []models.Status{models.StatusNew, models.StatusAwaitingApproval, models.StatusResolved} {
		for _, decision := range []string{"APPROVED", "REJECTED"} {
			exc := s.create(CreateInput{TypeID: 1, Title: "case", CreatedBy: &maker})
			exc.Status = status
			s.Require().NoError(s.store.UpdateException(s.ctx, exc))

			_, err := s.service.Approve(s.ctx, exc.ID, 1, decision, maker, nil)
			s.Truef(dErrors.HasCode(err, dErrors.CodeSelfApproval), "status=%s decision=%s", status, decision)
			s.Empty(s.auditTrail(exc.ID))
		}
	}
}

func (s *LifecycleSuite) TestApproveInvalidDecision() {
	exc := s.create(CreateInput{TypeID: 1, Title: "case"})
	_, err := s.service.Approve(s.ctx, exc.ID, 1, "MAYBE", 5, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidDecision))
}

func (s *LifecycleSuite) TestApproveNormalizesDecisionCase() {
	maker := int64(1)
	exc := s.create(CreateInput{TypeID: 1, Title: "case", CreatedBy: &maker})

	updated, err := s.service.Approve(s.ctx, exc.ID, 1, "approved", 5, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)
}

// The approval status write is privileged: it applies even from a status the
// transition table gives no edge to APPROVED from.
func (s *LifecycleSuite) TestApproveBypassesTransitionTable() {
	maker := int64(1)
	exc := s.create(CreateInput{TypeID: 1, Title: "case", CreatedBy: &maker})
	s.Require().Equal(models.StatusNew, exc.Status)
	s.Require().False(exc.Status.CanTransition(models.StatusApproved))

	updated, err := s.service.Approve(s.ctx, exc.ID, 1, "APPROVED", 5, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)

	events := s.auditTrail(exc.ID)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionApprovalApproved, events[0].Action)

	var snap audit.ApprovalSnapshot
	s.Require().NoError(json.Unmarshal(events[0].New, &snap))
	s.Equal("APPROVED", snap.Status)
	s.Equal(1, snap.Approval.Level)
	s.Equal("APPROVED", snap.Approval.Decision)
}

func (s *LifecycleSuite) TestRejectionSetsRejectedStatus() {
	exc := s.createWithStatus(models.StatusAwaitingApproval)
	comment := "missing evidence"

	updated, err := s.service.Approve(s.ctx, exc.ID, 2, "REJECTED", 9, &comment)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, updated.Status)

	events := s.auditTrail(exc.ID)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionApprovalRejected, events[0].Action)
}

func (s *LifecycleSuite) TestApprovalHistoryAppendsNeverUpdates() {
	exc := s.createWithStatus(models.StatusAwaitingApproval)

	_, err := s.service.Approve(s.ctx, exc.ID, 1, "REJECTED", 5, nil)
	s.Require().NoError(err)
	_, err = s.service.Approve(s.ctx, exc.ID, 1, "APPROVED", 6, nil)
	s.Require().NoError(err)

	approvals, err := s.service.ListApprovals(s.ctx, exc.ID)
	s.Require().NoError(err)
	s.Require().Len(approvals, 2)
	s.Equal(models.DecisionRejected, approvals[0].Decision)
	s.Equal(models.DecisionApproved, approvals[1].Decision)
	for _, ap := range approvals {
		s.Equal(1, ap.Level)
		s.Require().NotNil(ap.DecidedAt)
		s.Equal(fixedNow, *ap.DecidedAt)
	}
}

func (s *LifecycleSuite) TestAssignOverwritesOwnerAndAudits() {
	first := int64(10)
	exc := s.create(CreateInput{TypeID: 1, Title: "case", AssignedTo: &first})
	actor := int64(3)

	updated, err := s.service.Assign(s.ctx, exc.ID, 42, &actor, nil)
	s.Require().NoError(err)
	s.Require().NotNil(updated.AssignedTo)
	s.Equal(int64(42), *updated.AssignedTo)

	events := s.auditTrail(exc.ID)
	s.Require().Len(events, 1)
	s.Equal(audit.ActionAssigned, events[0].Action)

	var oldSnap, newSnap audit.AssignmentSnapshot
	s.Require().NoError(json.Unmarshal(events[0].Old, &oldSnap))
	s.Require().NoError(json.Unmarshal(events[0].New, &newSnap))
	s.Require().NotNil(oldSnap.AssignedTo)
	s.Equal(first, *oldSnap.AssignedTo)
	s.Require().NotNil(newSnap.AssignedTo)
	s.Equal(int64(42), *newSnap.AssignedTo)
}

func (s *LifecycleSuite) TestAssignNotFound() {
	_, err := s.service.Assign(s.ctx, 777, 42, nil, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) TestEscalateOverdueStampsAndAudits() {
	due := fixedNow.Add(-time.Hour)
	exc := s.create(CreateInput{TypeID: 1, Title: "case", DueAt: &due})

	escalated, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
	s.Require().NoError(err)
	s.True(escalated)

	current, err := s.store.GetException(s.ctx, exc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusEscalated, current.Status)
	s.Require().NotNil(current.EscalatedAt)
	s.Equal(fixedNow, *current.EscalatedAt)

	events := s.auditTrail(exc.ID)
	s.Require().Len(events, 1)
	ev := events[0]
	s.Equal(audit.ActionAutoEscalated, ev.Action)
	s.Nil(ev.ActorID, "auto escalation has no actor")

	var snap audit.EscalationSnapshot
	s.Require().NoError(json.Unmarshal(ev.New, &snap))
	s.Equal("ESCALATED", snap.Status)
	s.Equal("due_at passed", snap.Reason)
}

func (s *LifecycleSuite) TestEscalateOverdueIsIdempotent() {
	due := fixedNow.Add(-time.Hour)
	exc := s.create(CreateInput{TypeID: 1, Title: "case", DueAt: &due})

	escalated, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
	s.Require().NoError(err)
	s.True(escalated)

	again, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
	s.Require().NoError(err)
	s.False(again, "already escalated rows are skipped")
	s.Len(s.auditTrail(exc.ID), 1)
}

func (s *LifecycleSuite) TestEscalateOverdueSkipsTerminalAndFresh() {
	due := fixedNow.Add(-time.Hour)
	for _, status := range models.SweepTerminal {
		exc := s.create(CreateInput{TypeID: 1, Title: "case", DueAt: &due})
		exc.Status = status
		s.Require().NoError(s.store.UpdateException(s.ctx, exc))

		escalated, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
		s.Require().NoError(err)
		s.Falsef(escalated, "status %s must not escalate", status)
	}

	future := fixedNow.Add(time.Hour)
	exc := s.create(CreateInput{TypeID: 1, Title: "not due yet", DueAt: &future})
	escalated, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
	s.Require().NoError(err)
	s.False(escalated)
}

func (s *LifecycleSuite) TestListOverdueIDsAscending() {
	due := fixedNow.Add(-time.Hour)
	first := s.create(CreateInput{TypeID: 1, Title: "a", DueAt: &due})
	second := s.create(CreateInput{TypeID: 1, Title: "b", DueAt: &due})
	s.create(CreateInput{TypeID: 1, Title: "c"})

	ids, err := s.service.ListOverdueIDs(s.ctx, fixedNow)
	s.Require().NoError(err)
	s.Equal([]int64{first.ID, second.ID}, ids)
}

// End-to-end walk through assignment, transition, escalation, recovery, and
// the privileged approval move.
func (s *LifecycleSuite) TestFullLifecycleScenario() {
	maker := int64(1)
	due := fixedNow.Add(-time.Hour)
	exc := s.create(CreateInput{TypeID: 1, Title: "scenario", CreatedBy: &maker, DueAt: &due})

	_, err := s.service.Assign(s.ctx, exc.ID, 42, &maker, nil)
	s.Require().NoError(err)

	_, err = s.service.Transition(s.ctx, exc.ID, "IN_PROGRESS", &maker, nil)
	s.Require().NoError(err)

	escalated, err := s.service.EscalateOverdue(s.ctx, exc.ID, fixedNow)
	s.Require().NoError(err)
	s.Require().True(escalated)

	_, err = s.service.Transition(s.ctx, exc.ID, "AWAITING_APPROVAL", &maker, nil)
	s.Require().NoError(err)

	updated, err := s.service.Approve(s.ctx, exc.ID, 1, "APPROVED", 5, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, updated.Status)

	events := s.auditTrail(exc.ID)
	s.Require().Len(events, 5)
	actions := make([]string, 0, len(events))
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	s.Equal([]string{
		audit.ActionAssigned,
		audit.ActionStatusChanged,
		audit.ActionAutoEscalated,
		audit.ActionStatusChanged,
		audit.ActionApprovalApproved,
	}, actions)
	s.Len(s.forwarded, 5, "every committed mutation is offered to the forwarder")
}

func (s *LifecycleSuite) TestListAuditUnknownException() {
	_, err := s.service.ListAudit(s.ctx, 999)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
