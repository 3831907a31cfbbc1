// Package models holds the exception lifecycle types and the transition
// table. The table is the single source of truth for which status moves are
// legal; services consult it, they never duplicate it.
package models

import (
	"strings"
	"time"
)

// Status is an exception lifecycle state.
type Status string

const (
	StatusNew              Status = "NEW"
	StatusTriaged          Status = "TRIAGED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusResolved         Status = "RESOLVED"
	StatusClosed           Status = "CLOSED"
	StatusEscalated        Status = "ESCALATED"
)

// transitions maps each status to its allowed destinations. CLOSED is
// terminal: present with an empty set so lookups distinguish "unknown status"
// from "no outgoing edges".
var transitions = map[Status][]Status{
	StatusNew:              {StatusTriaged, StatusInProgress, StatusAwaitingApproval},
	StatusTriaged:          {StatusInProgress, StatusAwaitingApproval},
	StatusInProgress:       {StatusAwaitingApproval, StatusResolved},
	StatusAwaitingApproval: {StatusApproved, StatusRejected},
	StatusApproved:         {StatusResolved},
	StatusRejected:         {StatusInProgress, StatusClosed},
	StatusResolved:         {StatusClosed},
	StatusEscalated:        {StatusInProgress, StatusAwaitingApproval},
	StatusClosed:           {},
}

// SweepTerminal lists the statuses the SLA sweeper never escalates from.
var SweepTerminal = []Status{StatusClosed, StatusResolved, StatusRejected}

// ParseStatus validates a raw status name. A name is valid exactly when it
// appears in the transition table.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := transitions[s]
	return s, ok
}

// CanTransition reports whether the move from s to target is in the table.
func (s Status) CanTransition(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns the destinations reachable from s.
func (s Status) AllowedTargets() []Status {
	return append([]Status(nil), transitions[s]...)
}

// AllStatuses returns every recognized status.
func AllStatuses() []Status {
	out := make([]Status, 0, len(transitions))
	for s := range transitions {
		out = append(out, s)
	}
	return out
}

// Decision is a maker-checker approval outcome.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision normalizes and validates an approval decision. Only APPROVED
// and REJECTED are accepted as caller input; PENDING is a stored default, not
// a decision.
func ParseDecision(raw string) (Decision, bool) {
	d := Decision(strings.ToUpper(strings.TrimSpace(raw)))
	if d == DecisionApproved || d == DecisionRejected {
		return d, true
	}
	return "", false
}

// Exception is one deviation case moving through the lifecycle.
type Exception struct {
	ID          int64
	TypeID      int64
	Title       string
	Description *string
	Severity    *string
	BuID        *string
	CreatedBy   *int64
	AssignedTo  *int64
	Status      Status
	Priority    *int
	DueAt       *time.Time
	EscalatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Approval is one recorded maker-checker decision. Rows are append-only;
// a repeated decision at the same level inserts a new row.
type Approval struct {
	ID          int64
	ExceptionID int64
	Level       int
	ApproverID  *int64
	Decision    Decision
	Comment     *string
	DecidedAt   *time.Time
	CreatedAt   time.Time
}

// ListFilter narrows exception listings.
type ListFilter struct {
	Status *Status
	TypeID *int64
}
