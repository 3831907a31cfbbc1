// Package audit captures immutable before/after records for every engine
// mutation. Events are appended in the same transaction as the mutation they
// describe; the forwarder fans committed events out to Kafka best-effort.
package audit

import (
	"encoding/json"
	"time"
)

// Action tags classify audit events. One action per mutating operation.
const (
	ActionStatusChanged    = "STATUS_CHANGED"
	ActionAssigned         = "ASSIGNED"
	ActionApprovalApproved = "APPROVAL_APPROVED"
	ActionApprovalRejected = "APPROVAL_REJECTED"
	ActionAutoEscalated    = "AUTO_ESCALATED"
)

// EntityException is the entity_type for exception rows.
const EntityException = "exception"

// Event is one append-only audit record. ActorID nil means system-initiated
// (the SLA sweeper). Old and New hold marshalled snapshot structs so records
// stay machine-verifiable rather than free-form blobs.
type Event struct {
	ID         int64
	At         time.Time
	ActorID    *int64
	Action     string
	EntityType string
	EntityID   int64
	Old        json.RawMessage
	New        json.RawMessage
}

// StatusSnapshot is the old/new payload for STATUS_CHANGED and the old payload
// for approval and escalation events.
type StatusSnapshot struct {
	Status  string  `json:"status"`
	Comment *string `json:"comment,omitempty"`
}

// AssignmentSnapshot is the old/new payload for ASSIGNED.
type AssignmentSnapshot struct {
	AssignedTo *int64  `json:"assigned_to"`
	Comment    *string `json:"comment,omitempty"`
}

// ApprovalDetail is embedded in the new payload of approval events.
type ApprovalDetail struct {
	Level    int     `json:"level"`
	Decision string  `json:"decision"`
	Comment  *string `json:"comment,omitempty"`
}

// ApprovalSnapshot is the new payload for APPROVAL_APPROVED/APPROVAL_REJECTED.
type ApprovalSnapshot struct {
	Status   string         `json:"status"`
	Approval ApprovalDetail `json:"approval"`
}

// EscalationSnapshot is the new payload for AUTO_ESCALATED.
type EscalationSnapshot struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// Snapshot structs contain only marshal-safe fields.
		panic(err)
	}
	return raw
}
