package exceptiontype

import (
	"context"

	dErrors "ems/pkg/domain-errors"
)

// Service fronts the catalog store with validation and an optional
// read-through cache.
type Service struct {
	store Store
	cache *Cache
}

// NewService builds the catalog service. cache may be nil.
func NewService(store Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// CreateInput is the payload for a new catalog entry.
type CreateInput struct {
	Code            string
	Name            string
	Description     *string
	DefaultSLAHours int
	ApprovalLevels  int
	Active          *bool
}

// Create registers a type. SLA and approval depth fall back to the catalog
// defaults (72h, one level) when unset.
func (s *Service) Create(ctx context.Context, in CreateInput) (*ExceptionType, error) {
	if in.Code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if in.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if in.DefaultSLAHours == 0 {
		in.DefaultSLAHours = 72
	}
	if in.ApprovalLevels == 0 {
		in.ApprovalLevels = 1
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	et := &ExceptionType{
		Code:            in.Code,
		Name:            in.Name,
		Description:     in.Description,
		DefaultSLAHours: in.DefaultSLAHours,
		ApprovalLevels:  in.ApprovalLevels,
		Active:          active,
	}
	if err := s.store.Create(ctx, et); err != nil {
		return nil, err
	}
	return et, nil
}

// Get resolves a type by id, consulting the cache first.
func (s *Service) Get(ctx context.Context, id int64) (*ExceptionType, error) {
	if s.cache != nil {
		if et := s.cache.Get(ctx, id); et != nil {
			return et, nil
		}
	}
	et, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, et)
	}
	return et, nil
}

// List returns all catalog entries ordered by id.
func (s *Service) List(ctx context.Context) ([]*ExceptionType, error) {
	return s.store.List(ctx)
}
