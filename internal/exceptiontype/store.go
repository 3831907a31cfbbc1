package exceptiontype

import (
	"context"

	dErrors "ems/pkg/domain-errors"
)

// ErrNotFound is returned for unknown type ids.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "exception type not found")

// ErrDuplicateCode is returned when a catalog code already exists.
var ErrDuplicateCode = dErrors.New(dErrors.CodeConflict, "exception type code already exists")

// Store persists catalog entries.
type Store interface {
	Create(ctx context.Context, et *ExceptionType) error
	GetByID(ctx context.Context, id int64) (*ExceptionType, error)
	List(ctx context.Context) ([]*ExceptionType, error)
}
