// Package exceptiontype is the type catalog: each type names a deviation
// class and carries the SLA window and approval depth new exceptions inherit.
package exceptiontype

import "time"

// ExceptionType is one catalog entry. Code is unique.
type ExceptionType struct {
	ID              int64
	Code            string
	Name            string
	Description     *string
	DefaultSLAHours int
	ApprovalLevels  int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
