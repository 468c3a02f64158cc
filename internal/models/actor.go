package models

import "time"

// Role is the permission level an actor carries. Session handling is
// external; the role arrives resolved on each request.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Actor identifies the caller of a handler. Threaded explicitly through
// every mutating call; there is no implicit session state.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// AuditAction names an audit log entry type.
type AuditAction string

const (
	// AuditReplacementApproved records a queue item applied to a paragraph.
	AuditReplacementApproved AuditAction = "replacement_approved"
	// AuditReplacementRejected records a declined queue item.
	AuditReplacementRejected AuditAction = "replacement_rejected"
	// AuditRollbackApplied records a paragraph restored to a prior version.
	AuditRollbackApplied AuditAction = "rollback_applied"
)

// AuditEntry is one immutable record of an admin decision or rollback.
type AuditEntry struct {
	ID          string      `json:"id" db:"id"`
	DocumentID  string      `json:"document_id" db:"document_id"`
	ParagraphID string      `json:"paragraph_id" db:"paragraph_id"`
	Action      AuditAction `json:"action" db:"action"`
	QueueID     string      `json:"queue_id,omitempty" db:"queue_id"`
	FromVersion int         `json:"from_version" db:"from_version"`
	ToVersion   int         `json:"to_version" db:"to_version"`
	ActorID     string      `json:"actor_id" db:"actor_id"`
	Notes       string      `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
