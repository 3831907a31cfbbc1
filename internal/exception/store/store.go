// Package store persists exceptions, approvals, and audit events. Stores are
// interface-driven so the engine can run on in-memory persistence in tests and
// PostgreSQL in production without rewiring business code.
package store

import (
	"context"
	"time"

	"ems/internal/audit"
	"ems/internal/exception/models"
	dErrors "ems/pkg/domain-errors"
)

// ErrNotFound keeps store-level 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "exception not found")

// Store is the row-store surface the lifecycle engine consumes. Approval and
// audit rows are causally subordinate to the exception they reference and are
// written through the same store handle so a transaction covers all three.
type Store interface {
	GetException(ctx context.Context, id int64) (*models.Exception, error)
	CreateException(ctx context.Context, exc *models.Exception) error
	UpdateException(ctx context.Context, exc *models.Exception) error
	ListExceptions(ctx context.Context, filter models.ListFilter) ([]*models.Exception, error)

	// ListOverdueIDs returns ids of exceptions with a passed due_at that are
	// neither terminal nor already escalated, ascending for deterministic
	// sweep order.
	ListOverdueIDs(ctx context.Context, now time.Time) ([]int64, error)

	AddApproval(ctx context.Context, approval *models.Approval) error
	ListApprovals(ctx context.Context, exceptionID int64) ([]*models.Approval, error)

	AppendAudit(ctx context.Context, event *audit.Event) error
	ListAuditByEntity(ctx context.Context, entityType string, entityID int64) ([]*audit.Event, error)
}

// Tx provides the atomic boundary for read-modify-write-audit sequences. The
// store passed to fn is bound to one transaction; fn returning an error rolls
// every write back. Implementations may wrap a database transaction or, in
// memory, a coarse lock with snapshot restore.
type Tx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}
