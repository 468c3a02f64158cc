package models

import "time"

// QueueStatus is the state of a pending replacement. Terminal states
// (approved, rejected, expired) are immutable.
type QueueStatus string

const (
	// StatusPending awaits an admin decision.
	StatusPending QueueStatus = "pending"
	// StatusApproved was applied to the paragraph.
	StatusApproved QueueStatus = "approved"
	// StatusRejected was declined; the paragraph is untouched.
	StatusRejected QueueStatus = "rejected"
	// StatusExpired had its suggestion deleted before a decision.
	StatusExpired QueueStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s QueueStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// PendingReplacement is a consensus-qualified suggestion awaiting admin
// review. At most one pending item exists per paragraph.
type PendingReplacement struct {
	ID                  string      `json:"queue_id" db:"id"`
	DocumentID          string      `json:"document_id" db:"document_id"`
	ParagraphID         string      `json:"paragraph_id" db:"paragraph_id"`
	SuggestionID        string      `json:"suggestion_id" db:"suggestion_id"`
	CurrentText         string      `json:"current_text" db:"current_text"`
	ProposedText        string      `json:"proposed_text" db:"proposed_text"`
	Consensus           float64     `json:"consensus" db:"consensus"`
	ConsensusAtCreation float64     `json:"consensus_at_creation" db:"consensus_at_creation"`
	EvaluationCount     int         `json:"evaluation_count" db:"evaluation_count"`
	Status              QueueStatus `json:"status" db:"status"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	ResolvedAt          *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy          string      `json:"resolved_by,omitempty" db:"resolved_by"`
	AdminNotes          string      `json:"admin_notes,omitempty" db:"admin_notes"`
}
