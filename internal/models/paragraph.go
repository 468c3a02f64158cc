package models

import "time"

// Paragraph is an officially published, versioned unit of document text.
// Only the review handler mutates it; version numbers increase from 1 with
// no gaps.
type Paragraph struct {
	ID              string          `json:"id" db:"id"`
	DocumentID      string          `json:"document_id" db:"document_id"`
	Text            string          `json:"text" db:"text"`
	Order           int             `json:"order" db:"ord"`
	VersionNumber   int             `json:"version_number" db:"version_number"`
	FinalizedBy     string          `json:"finalized_by,omitempty" db:"finalized_by"`
	FinalizedAt     *time.Time      `json:"finalized_at,omitempty" db:"finalized_at"`
	FinalizedReason FinalizedReason `json:"finalized_reason,omitempty" db:"finalized_reason"`
	Consensus       float64         `json:"consensus" db:"consensus"`
}

// Suggestion is a user-proposed replacement for a paragraph's text.
// Text is immutable once created; an edit is a new Suggestion.
type Suggestion struct {
	ID            string    `json:"id" db:"id"`
	ParagraphID   string    `json:"paragraph_id" db:"paragraph_id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	Text          string    `json:"text" db:"text"`
	CreatorID     string    `json:"creator_id" db:"creator_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	AgreeCount    int       `json:"agree_count" db:"agree_count"`
	DisagreeCount int       `json:"disagree_count" db:"disagree_count"`
	Consensus     float64   `json:"consensus" db:"consensus"`
}

// EvaluationCount is the total number of votes cast on the suggestion.
func (s *Suggestion) EvaluationCount() int {
	return s.AgreeCount + s.DisagreeCount
}

// Evaluation is one user's agree/disagree vote on a suggestion. The id is
// deterministic ("<evaluatorID>--<suggestionID>") so a user can hold at most
// one vote per suggestion.
type Evaluation struct {
	ID           string    `json:"id" db:"id"`
	SuggestionID string    `json:"suggestion_id" db:"suggestion_id"`
	EvaluatorID  string    `json:"evaluator_id" db:"evaluator_id"`
	Value        int       `json:"value" db:"value"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EvaluationID builds the deterministic evaluation id.
func EvaluationID(evaluatorID, suggestionID string) string {
	return evaluatorID + "--" + suggestionID
}
