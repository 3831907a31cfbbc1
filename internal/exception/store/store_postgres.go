package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ems/internal/audit"
	"ems/internal/exception/models"
	dErrors "ems/pkg/domain-errors"
)

// querier abstracts *sql.DB and *sql.Tx so one store implementation serves
// both direct reads and transactional read-modify-write sequences.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists the engine's rows in PostgreSQL. The store is pure
// I/O; lifecycle rules live in the service.
type PostgresStore struct {
	q    querier
	inTx bool
}

// NewPostgres constructs a PostgreSQL-backed store for non-transactional reads.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{q: db}
}

const exceptionColumns = `id, type_id, title, description, severity, bu_id,
		created_by, assigned_to, status, priority, due_at, escalated_at,
		created_at, updated_at`

func (s *PostgresStore) GetException(ctx context.Context, id int64) (*models.Exception, error) {
	query := `SELECT ` + exceptionColumns + ` FROM exceptions WHERE id = $1`
	if s.inTx {
		// The exception row is the serialization unit: lock it for the
		// duration of the read-modify-write.
		query += ` FOR UPDATE`
	}
	exc, err := scanException(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exception: %w", err)
	}
	return exc, nil
}

func (s *PostgresStore) CreateException(ctx context.Context, exc *models.Exception) error {
	query := `
		INSERT INTO exceptions (type_id, title, description, severity, bu_id,
			created_by, assigned_to, status, priority, due_at, escalated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := s.q.QueryRowContext(ctx, query,
		exc.TypeID,
		exc.Title,
		exc.Description,
		exc.Severity,
		exc.BuID,
		exc.CreatedBy,
		exc.AssignedTo,
		string(exc.Status),
		exc.Priority,
		exc.DueAt,
		exc.EscalatedAt,
	).Scan(&exc.ID, &exc.CreatedAt, &exc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create exception: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateException(ctx context.Context, exc *models.Exception) error {
	query := `
		UPDATE exceptions
		SET type_id = $2, title = $3, description = $4, severity = $5, bu_id = $6,
			created_by = $7, assigned_to = $8, status = $9, priority = $10,
			due_at = $11, escalated_at = $12, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := s.q.QueryRowContext(ctx, query,
		exc.ID,
		exc.TypeID,
		exc.Title,
		exc.Description,
		exc.Severity,
		exc.BuID,
		exc.CreatedBy,
		exc.AssignedTo,
		string(exc.Status),
		exc.Priority,
		exc.DueAt,
		exc.EscalatedAt,
	).Scan(&exc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update exception: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExceptions(ctx context.Context, filter models.ListFilter) ([]*models.Exception, error) {
	query := `SELECT ` + exceptionColumns + ` FROM exceptions`
	var (
		clauses []string
		args    []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TypeID != nil {
		args = append(args, *filter.TypeID)
		clauses = append(clauses, fmt.Sprintf("type_id = $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY id DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Exception
	for rows.Next() {
		exc, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("list exceptions: %w", err)
		}
		out = append(out, exc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListOverdueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		SELECT id FROM exceptions
		WHERE due_at IS NOT NULL
		  AND due_at < $1
		  AND status NOT IN ($2, $3, $4)
		  AND status <> $5
		ORDER BY id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, now,
		string(models.StatusClosed),
		string(models.StatusResolved),
		string(models.StatusRejected),
		string(models.StatusEscalated),
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue exceptions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list overdue exceptions: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) AddApproval(ctx context.Context, approval *models.Approval) error {
	query := `
		INSERT INTO approvals (exception_id, level, approver_id, decision, comment, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := s.q.QueryRowContext(ctx, query,
		approval.ExceptionID,
		approval.Level,
		approval.ApproverID,
		string(approval.Decision),
		approval.Comment,
		approval.DecidedAt,
	).Scan(&approval.ID, &approval.CreatedAt)
	if err != nil {
		return fmt.Errorf("add approval: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, exceptionID int64) ([]*models.Approval, error) {
	query := `
		SELECT id, exception_id, level, approver_id, decision, comment, decided_at, created_at
		FROM approvals
		WHERE exception_id = $1
		ORDER BY id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, exceptionID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []*models.Approval
	for rows.Next() {
		var (
			approval   models.Approval
			approverID sql.NullInt64
			comment    sql.NullString
			decidedAt  sql.NullTime
			decision   string
		)
		if err := rows.Scan(&approval.ID, &approval.ExceptionID, &approval.Level,
			&approverID, &decision, &comment, &decidedAt, &approval.CreatedAt); err != nil {
			return nil, fmt.Errorf("list approvals: %w", err)
		}
		approval.Decision = models.Decision(decision)
		if approverID.Valid {
			approval.ApproverID = &approverID.Int64
		}
		if comment.Valid {
			approval.Comment = &comment.String
		}
		if decidedAt.Valid {
			approval.DecidedAt = &decidedAt.Time
		}
		out = append(out, &approval)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendAudit(ctx context.Context, event *audit.Event) error {
	query := `
		INSERT INTO audit_events (at, actor_id, action, entity_type, entity_id, old, new)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.q.QueryRowContext(ctx, query,
		event.At,
		event.ActorID,
		event.Action,
		event.EntityType,
		event.EntityID,
		[]byte(event.Old),
		[]byte(event.New),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditByEntity(ctx context.Context, entityType string, entityID int64) ([]*audit.Event, error) {
	query := `
		SELECT id, at, actor_id, action, entity_type, entity_id, old, new
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id ASC
	`
	rows, err := s.q.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		var (
			event   audit.Event
			actorID sql.NullInt64
			oldRaw  []byte
			newRaw  []byte
		)
		if err := rows.Scan(&event.ID, &event.At, &actorID, &event.Action,
			&event.EntityType, &event.EntityID, &oldRaw, &newRaw); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		if actorID.Valid {
			event.ActorID = &actorID.Int64
		}
		event.Old = oldRaw
		event.New = newRaw
		out = append(out, &event)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanException(row rowScanner) (*models.Exception, error) {
	var (
		exc         models.Exception
		description sql.NullString
		severity    sql.NullString
		buID        sql.NullString
		createdBy   sql.NullInt64
		assignedTo  sql.NullInt64
		status      string
		priority    sql.NullInt64
		dueAt       sql.NullTime
		escalatedAt sql.NullTime
	)
	err := row.Scan(&exc.ID, &exc.TypeID, &exc.Title, &description, &severity, &buID,
		&createdBy, &assignedTo, &status, &priority, &dueAt, &escalatedAt,
		&exc.CreatedAt, &exc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	exc.Status = models.Status(status)
	if description.Valid {
		exc.Description = &description.String
	}
	if severity.Valid {
		exc.Severity = &severity.String
	}
	if buID.Valid {
		exc.BuID = &buID.String
	}
	if createdBy.Valid {
		exc.CreatedBy = &createdBy.Int64
	}
	if assignedTo.Valid {
		exc.AssignedTo = &assignedTo.Int64
	}
	if priority.Valid {
		p := int(priority.Int64)
		exc.Priority = &p
	}
	if dueAt.Valid {
		t := dueAt.Time
		exc.DueAt = &t
	}
	if escalatedAt.Valid {
		t := escalatedAt.Time
		exc.EscalatedAt = &t
	}
	return &exc, nil
}

const defaultTxTimeout = 5 * time.Second

// PostgresTx runs read-modify-write-audit sequences in one database
// transaction. The bound store locks the exception row on read, so a
// concurrent writer either sees the committed prior state or serializes
// after this transaction.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{db: db}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&PostgresStore{q: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
