// Package service implements the exception lifecycle engine: the transition
// state machine, the maker-checker approval coordinator, assignment, and the
// per-row escalation step the SLA sweeper drives. Every mutation runs its
// read-modify-write-audit sequence inside one store transaction.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ems/internal/audit"
	"ems/internal/exception/models"
	"ems/internal/exception/store"
	"ems/internal/platform/metrics"
	dErrors "ems/pkg/domain-errors"
)

// escalationReason is recorded on sweeper-driven escalations.
const escalationReason = "due_at passed"

// TypeInfo is the slice of the type catalog the engine consults when
// defaulting a new exception's deadline.
type TypeInfo struct {
	DefaultSLAHours int
	ApprovalLevels  int
}

// TypeCatalog resolves exception types. Implementations return a
// CodeNotFound error for unknown ids.
type TypeCatalog interface {
	GetType(ctx context.Context, id int64) (TypeInfo, error)
}

// Service orchestrates exception mutations over the transactional store.
type Service struct {
	tx       store.Tx
	reader   store.Store
	catalog  TypeCatalog
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer

	forward func(*audit.Event)
	now     func() time.Time
}

// New builds the lifecycle service. catalog may be nil when no type catalog is
// wired (deadlines then stay as supplied by the caller).
func New(tx store.Tx, reader store.Store, catalog TypeCatalog, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		tx:       tx,
		reader:   reader,
		catalog:  catalog,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("ems/exception"),
		now:      time.Now,
	}
}

// SetForwarder installs a post-commit hook receiving every audit event that
// was durably written. It must not block.
func (s *Service) SetForwarder(offer func(*audit.Event)) {
	s.forward = offer
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateInput is the caller-validated payload for a new exception.
type CreateInput struct {
	TypeID      int64
	Title       string
	Description *string
	Severity    *string
	BuID        *string
	CreatedBy   *int64
	AssignedTo  *int64
	Priority    *int
	DueAt       *time.Time
}

// Create inserts a new exception in status NEW. When the caller supplies no
// deadline and the catalog knows the type, due_at defaults to now plus the
// type's SLA window.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Exception, error) {
	ctx, span := s.tracer.Start(ctx, "exception.Create")
	defer span.End()

	if in.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if in.TypeID == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "type_id is required")
	}

	dueAt := in.DueAt
	if dueAt == nil && s.catalog != nil {
		info, err := s.catalog.GetType(ctx, in.TypeID)
		switch {
		case err == nil && info.DefaultSLAHours > 0:
			t := s.now().UTC().Add(time.Duration(info.DefaultSLAHours) * time.Hour)
			dueAt = &t
		case err != nil && !dErrors.Is(err, dErrors.CodeNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve exception type")
		}
	}

	exc := &models.Exception{
		TypeID:      in.TypeID,
		Title:       in.Title,
		Description: in.Description,
		Severity:    in.Severity,
		BuID:        in.BuID,
		CreatedBy:   in.CreatedBy,
		AssignedTo:  in.AssignedTo,
		Status:      models.StatusNew,
		Priority:    in.Priority,
		DueAt:       dueAt,
	}
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		return st.CreateException(ctx, exc)
	})
	if err != nil {
		return nil, err
	}
	return exc, nil
}

// Get returns one exception.
func (s *Service) Get(ctx context.Context, id int64) (*models.Exception, error) {
	return s.reader.GetException(ctx, id)
}

// List returns exceptions matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Exception, error) {
	return s.reader.ListExceptions(ctx, filter)
}

// ListApprovals returns the full approval history for an exception.
func (s *Service) ListApprovals(ctx context.Context, id int64) ([]*models.Approval, error) {
	if _, err := s.reader.GetException(ctx, id); err != nil {
		return nil, err
	}
	return s.reader.ListApprovals(ctx, id)
}

// ListAudit returns the audit trail for an exception.
func (s *Service) ListAudit(ctx context.Context, id int64) ([]*audit.Event, error) {
	if _, err := s.reader.GetException(ctx, id); err != nil {
		return nil, err
	}
	return s.reader.ListAuditByEntity(ctx, audit.EntityException, id)
}

// Transition applies one status change through the transition table. The
// status update, the escalation timestamp when moving to ESCALATED, and the
// audit append commit as one unit.
func (s *Service) Transition(ctx context.Context, id int64, targetRaw string, actorID *int64, comment *string) (*models.Exception, error) {
	ctx, span := s.tracer.Start(ctx, "exception.Transition",
		trace.WithAttributes(attribute.Int64("exception.id", id), attribute.String("exception.target", targetRaw)))
	defer span.End()

	target, ok := models.ParseStatus(targetRaw)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidStatus, "unknown status %q", targetRaw)
	}

	var (
		updated *models.Exception
		event   *audit.Event
		from    models.Status
	)
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		exc, err := st.GetException(ctx, id)
		if err != nil {
			return err
		}
		if !exc.Status.CanTransition(target) {
			return dErrors.Newf(dErrors.CodeIllegalTransition,
				"invalid transition %s -> %s", exc.Status, target)
		}

		from = exc.Status
		exc.Status = target
		if target == models.StatusEscalated {
			now := s.now().UTC()
			exc.EscalatedAt = &now
		}
		if err := st.UpdateException(ctx, exc); err != nil {
			return err
		}

		event = s.recorder.StatusChanged(exc.ID, actorID, string(from), string(target), comment)
		if err := st.AppendAudit(ctx, event); err != nil {
			return err
		}
		updated = exc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(string(from), string(target))
	s.offer(event)
	return updated, nil
}

// Approve records one maker-checker decision and applies the status move it
// drives. The status write is privileged: it does not consult the transition
// table, mirroring the source system's observed behavior.
func (s *Service) Approve(ctx context.Context, id int64, level int, decisionRaw string, approverID int64, comment *string) (*models.Exception, error) {
	ctx, span := s.tracer.Start(ctx, "exception.Approve",
		trace.WithAttributes(attribute.Int64("exception.id", id), attribute.Int("approval.level", level)))
	defer span.End()

	decision, ok := models.ParseDecision(decisionRaw)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidDecision, "decision must be APPROVED or REJECTED")
	}

	var (
		updated *models.Exception
		event   *audit.Event
	)
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		exc, err := st.GetException(ctx, id)
		if err != nil {
			return err
		}
		// Maker-checker is an identity rule, not a transition rule: it holds
		// regardless of the exception's current status.
		if exc.CreatedBy != nil && *exc.CreatedBy == approverID {
			return dErrors.New(dErrors.CodeSelfApproval, "creator cannot approve own exception")
		}

		decidedAt := s.now().UTC()
		approval := &models.Approval{
			ExceptionID: exc.ID,
			Level:       level,
			ApproverID:  &approverID,
			Decision:    decision,
			Comment:     comment,
			DecidedAt:   &decidedAt,
		}
		if err := st.AddApproval(ctx, approval); err != nil {
			return err
		}

		from := exc.Status
		if decision == models.DecisionApproved {
			exc.Status = models.StatusApproved
		} else {
			exc.Status = models.StatusRejected
		}
		if err := st.UpdateException(ctx, exc); err != nil {
			return err
		}

		event = s.recorder.ApprovalDecided(exc.ID, approverID, string(from), string(exc.Status), audit.ApprovalDetail{
			Level:    level,
			Decision: string(decision),
			Comment:  comment,
		})
		if err := st.AppendAudit(ctx, event); err != nil {
			return err
		}
		updated = exc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordApproval(string(decision))
	s.offer(event)
	return updated, nil
}

// Assign overwrites the exception's owner. There is no ownership-transfer
// validation and no status precondition.
func (s *Service) Assign(ctx context.Context, id int64, assignedTo int64, actorID *int64, comment *string) (*models.Exception, error) {
	ctx, span := s.tracer.Start(ctx, "exception.Assign",
		trace.WithAttributes(attribute.Int64("exception.id", id)))
	defer span.End()

	var (
		updated *models.Exception
		event   *audit.Event
	)
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		exc, err := st.GetException(ctx, id)
		if err != nil {
			return err
		}

		previous := exc.AssignedTo
		exc.AssignedTo = &assignedTo
		if err := st.UpdateException(ctx, exc); err != nil {
			return err
		}

		event = s.recorder.Assigned(exc.ID, actorID, previous, exc.AssignedTo, comment)
		if err := st.AppendAudit(ctx, event); err != nil {
			return err
		}
		updated = exc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAssignment()
	s.offer(event)
	return updated, nil
}

// EscalateOverdue is the sweeper's per-row step. It re-checks the overdue
// predicate inside the transaction so a row that was transitioned or already
// escalated since candidate selection is skipped without writes. Returns
// whether the row was escalated.
func (s *Service) EscalateOverdue(ctx context.Context, id int64, now time.Time) (bool, error) {
	var (
		escalated bool
		event     *audit.Event
	)
	err := s.tx.RunInTx(ctx, func(st store.Store) error {
		exc, err := st.GetException(ctx, id)
		if err != nil {
			return err
		}
		if !isOverdue(exc, now) {
			return nil
		}

		from := exc.Status
		at := now.UTC()
		exc.Status = models.StatusEscalated
		exc.EscalatedAt = &at
		if err := st.UpdateException(ctx, exc); err != nil {
			return err
		}

		event = s.recorder.AutoEscalated(exc.ID, at, string(from), string(models.StatusEscalated), escalationReason)
		if err := st.AppendAudit(ctx, event); err != nil {
			return err
		}
		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if escalated {
		s.metrics.RecordAutoEscalation()
		s.offer(event)
	}
	return escalated, nil
}

// ListOverdueIDs exposes candidate selection for the sweeper, ascending by id.
func (s *Service) ListOverdueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	return s.reader.ListOverdueIDs(ctx, now)
}

func isOverdue(exc *models.Exception, now time.Time) bool {
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

func (s *Service) offer(event *audit.Event) {
	if s.forward != nil && event != nil {
		s.forward(event)
	}
}
