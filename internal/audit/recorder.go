package audit

import "time"

// Recorder builds audit events for the lifecycle engine. It is pure: events
// are returned to the caller, which persists them inside the same transaction
// as the mutation they describe. No policy lives here.
type Recorder struct {
	now func() time.Time
}

// NewRecorder builds a Recorder. The clock is injectable for tests; nil means
// time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// StatusChanged records an interactive transition.
func (r *Recorder) StatusChanged(entityID int64, actorID *int64, oldStatus, newStatus string, comment *string) *Event {
	return &Event{
		At:         r.now().UTC(),
		ActorID:    actorID,
		Action:     ActionStatusChanged,
		EntityType: EntityException,
		EntityID:   entityID,
		Old:        mustMarshal(StatusSnapshot{Status: oldStatus}),
		New:        mustMarshal(StatusSnapshot{Status: newStatus, Comment: comment}),
	}
}

// Assigned records an owner change.
func (r *Recorder) Assigned(entityID int64, actorID *int64, oldAssignee, newAssignee *int64, comment *string) *Event {
	return &Event{
		At:         r.now().UTC(),
		ActorID:    actorID,
		Action:     ActionAssigned,
		EntityType: EntityException,
		EntityID:   entityID,
		Old:        mustMarshal(AssignmentSnapshot{AssignedTo: oldAssignee}),
		New:        mustMarshal(AssignmentSnapshot{AssignedTo: newAssignee, Comment: comment}),
	}
}

// ApprovalDecided records a maker-checker decision and the status move it drove.
func (r *Recorder) ApprovalDecided(entityID int64, approverID int64, oldStatus, newStatus string, detail ApprovalDetail) *Event {
	action := ActionApprovalApproved
	if detail.Decision == "REJECTED" {
		action = ActionApprovalRejected
	}
	return &Event{
		At:         r.now().UTC(),
		ActorID:    &approverID,
		Action:     action,
		EntityType: EntityException,
		EntityID:   entityID,
		Old:        mustMarshal(StatusSnapshot{Status: oldStatus}),
		New:        mustMarshal(ApprovalSnapshot{Status: newStatus, Approval: detail}),
	}
}

// AutoEscalated records a sweeper-driven escalation. The actor is nil: the
// mutation was not requested by any caller.
func (r *Recorder) AutoEscalated(entityID int64, at time.Time, oldStatus, newStatus, reason string) *Event {
	return &Event{
		At:         at.UTC(),
		ActorID:    nil,
		Action:     ActionAutoEscalated,
		EntityType: EntityException,
		EntityID:   entityID,
		Old:        mustMarshal(StatusSnapshot{Status: oldStatus}),
		New:        mustMarshal(EscalationSnapshot{Status: newStatus, Reason: reason}),
	}
}
