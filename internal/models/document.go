// Package models defines core data structures for documents, paragraphs,
// suggestions, evaluations, the replacement queue, and version history.
package models

import "time"

// FinalizedReason records why a paragraph's text was last replaced.
type FinalizedReason string

const (
	// ReasonManualApproval marks text applied by an admin approving a queue item.
	ReasonManualApproval FinalizedReason = "manual_approval"
	// ReasonRollback marks text restored from a prior version.
	ReasonRollback FinalizedReason = "rollback"
	// ReasonAuto marks text applied without human review.
	ReasonAuto FinalizedReason = "auto"
)

// VersionControlSettings configures consensus review and history retention
// for a single document.
type VersionControlSettings struct {
	Enabled                  bool    `json:"enabled" yaml:"enabled"`
	ReviewThreshold          float64 `json:"review_threshold" yaml:"review_threshold"`
	AllowAdminEdit           bool    `json:"allow_admin_edit" yaml:"allow_admin_edit"`
	MaxRecentVersions        int     `json:"max_recent_versions" yaml:"max_recent_versions"`
	MaxTotalVersions         int     `json:"max_total_versions" yaml:"max_total_versions"`
	RejectBlocksResubmission bool    `json:"reject_blocks_resubmission" yaml:"reject_blocks_resubmission"`
}

// Retention defaults applied when a document leaves the limits unset.
const (
	DefaultMaxRecentVersions = 4
	DefaultMaxTotalVersions  = 50
)

// WithDefaults returns a copy with zero retention limits replaced by the
// package defaults.
func (s VersionControlSettings) WithDefaults() VersionControlSettings {
	if s.MaxRecentVersions <= 0 {
		s.MaxRecentVersions = DefaultMaxRecentVersions
	}
	if s.MaxTotalVersions <= 0 {
		s.MaxTotalVersions = DefaultMaxTotalVersions
	}
	return s
}

// Document is an officially published document; paragraphs are owned by it.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	Title     string                 `json:"title" db:"title"`
	OwnerID   string                 `json:"owner_id" db:"owner_id"`
	Settings  VersionControlSettings `json:"version_control_settings"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}
