package models

import "time"

// StorageClass tags how a history entry's text is stored.
type StorageClass string

const (
	// ClassRecent stores verbatim text.
	ClassRecent StorageClass = "recent"
	// ClassArchived stores a deflate+base64 payload.
	ClassArchived StorageClass = "archived"
)

// VersionHistoryEntry is one prior state of a paragraph. It never represents
// the live text; the listing synthesizes the current entry from the
// paragraph row. Immutable except for pruning deletion.
type VersionHistoryEntry struct {
	ID                string          `json:"id" db:"id"`
	ParagraphID       string          `json:"paragraph_id" db:"paragraph_id"`
	VersionNumber     int             `json:"version_number" db:"version_number"`
	StorageClass      StorageClass    `json:"-" db:"storage_class"`
	Text              string          `json:"text" db:"text"`
	CompressedPayload string          `json:"-" db:"payload"`
	FinalizedBy       string          `json:"finalized_by" db:"finalized_by"`
	FinalizedAt       time.Time       `json:"finalized_at" db:"finalized_at"`
	FinalizedReason   FinalizedReason `json:"finalized_reason" db:"finalized_reason"`
	Hide              bool            `json:"hide" db:"hide"`
}

// VersionListEntry is one row of a version listing: a history entry with its
// text resolved, or the synthesized live version flagged as current.
type VersionListEntry struct {
	VersionNumber   int             `json:"version_number"`
	Text            string          `json:"text"`
	FinalizedBy     string          `json:"finalized_by,omitempty"`
	FinalizedAt     *time.Time      `json:"finalized_at,omitempty"`
	FinalizedReason FinalizedReason `json:"finalized_reason,omitempty"`
	Current         bool            `json:"current"`
	Archived        bool            `json:"archived"`
}

// VersionListing is one page of a paragraph's version history.
type VersionListing struct {
	ParagraphID string              `json:"paragraph_id"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	Total       int                 `json:"total"`
	Entries     []*VersionListEntry `json:"entries"`
}
