package main

import (
	"context"

	excservice "ems/internal/exception/service"
	excstore "ems/internal/exception/store"
	"ems/internal/exceptiontype"
)

// typeCatalog adapts the catalog service to the lifecycle engine's view of a
// type. Keeping the adapter here avoids a package cycle between the engine and
// the catalog.
type typeCatalog struct {
	types *exceptiontype.Service
}

func (c typeCatalog) GetType(ctx context.Context, id int64) (excservice.TypeInfo, error) {
	et, err := c.types.Get(ctx, id)
	if err != nil {
		return excservice.TypeInfo{}, err
	}
	return excservice.TypeInfo{
		DefaultSLAHours: et.DefaultSLAHours,
		ApprovalLevels:  et.ApprovalLevels,
	}, nil
}

// exceptionDirectory lets the attachment service confirm an exception exists
// without importing the lifecycle packages.
type exceptionDirectory struct {
	store excstore.Store
}

func (d exceptionDirectory) Exists(ctx context.Context, id int64) error {
	_, err := d.store.GetException(ctx, id)
	return err
}
