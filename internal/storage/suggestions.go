package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/models"
)

// CreateSuggestion inserts a suggestion. Suggestion text is immutable after
// this point; an edit is a new suggestion.
func (t *Tx) CreateSuggestion(ctx context.Context, s *models.Suggestion) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO suggestions (id, paragraph_id, document_id, text, creator_id,
		    created_at, agree_count, disagree_count, counts_initialized, consensus)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		s.ID, s.ParagraphID, s.DocumentID, s.Text, s.CreatorID,
		s.CreatedAt, s.AgreeCount, s.DisagreeCount, s.Consensus,
	)
	if err != nil {
		return errdefs.Databasef("insert suggestion", err)
	}
	return nil
}

// CreateLegacySuggestion inserts a suggestion with uninitialized counters,
// as rows created before counter tracking existed. Used in tests and by the
// backfill path.
func (t *Tx) CreateLegacySuggestion(ctx context.Context, s *models.Suggestion) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO suggestions (id, paragraph_id, document_id, text, creator_id,
		    created_at, agree_count, disagree_count, counts_initialized, consensus)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0)`,
		s.ID, s.ParagraphID, s.DocumentID, s.Text, s.CreatorID, s.CreatedAt,
	)
	if err != nil {
		return errdefs.Databasef("insert legacy suggestion", err)
	}
	return nil
}

// GetSuggestion returns a suggestion by ID, including whether its counters
// have been initialized.
func (t *Tx) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, bool, error) {
	var s models.Suggestion
	var initialized bool
	err := t.q.QueryRowContext(ctx,
		`SELECT id, paragraph_id, document_id, text, creator_id, created_at,
		    agree_count, disagree_count, counts_initialized, consensus
		 FROM suggestions WHERE id = ?`, id,
	).Scan(&s.ID, &s.ParagraphID, &s.DocumentID, &s.Text, &s.CreatorID, &s.CreatedAt,
		&s.AgreeCount, &s.DisagreeCount, &initialized, &s.Consensus)
	if err == sql.ErrNoRows {
		return nil, false, errdefs.NotFoundf("suggestion %s", id)
	}
	if err != nil {
		return nil, false, errdefs.Databasef("select suggestion", err)
	}
	return &s, initialized, nil
}

// DeleteSuggestion removes a suggestion and, via cascade, its evaluations.
func (t *Tx) DeleteSuggestion(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return errdefs.Databasef("delete suggestion", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFoundf("suggestion %s", id)
	}
	return nil
}

// AddSuggestionCounts atomically adjusts the agree/disagree counters.
func (t *Tx) AddSuggestionCounts(ctx context.Context, id string, dAgree, dDisagree int) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE suggestions SET agree_count = agree_count + ?, disagree_count = disagree_count + ?
		 WHERE id = ?`, dAgree, dDisagree, id)
	if err != nil {
		return errdefs.Databasef("adjust suggestion counters", err)
	}
	return nil
}

// SetSuggestionCounts overwrites the counters and marks them initialized.
// Used only by the one-time legacy backfill.
func (t *Tx) SetSuggestionCounts(ctx context.Context, id string, agree, disagree int) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE suggestions SET agree_count = ?, disagree_count = ?, counts_initialized = 1
		 WHERE id = ?`, agree, disagree, id)
	if err != nil {
		return errdefs.Databasef("backfill suggestion counters", err)
	}
	return nil
}

// SetSuggestionConsensus persists a recomputed consensus score.
func (t *Tx) SetSuggestionConsensus(ctx context.Context, id string, score float64) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE suggestions SET consensus = ? WHERE id = ?`, score, id)
	if err != nil {
		return errdefs.Databasef("update suggestion consensus", err)
	}
	return nil
}

// CountEvaluations tallies a suggestion's votes by scanning its evaluations.
// Only the legacy backfill uses this; the steady state is incremental.
func (t *Tx) CountEvaluations(ctx context.Context, suggestionID string) (agree, disagree int, err error) {
	err = t.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END), 0)
		 FROM evaluations WHERE suggestion_id = ?`, suggestionID,
	).Scan(&agree, &disagree)
	if err != nil {
		return 0, 0, errdefs.Databasef("count evaluations", err)
	}
	return agree, disagree, nil
}

// GetEvaluation returns an evaluation by its deterministic ID, or nil when
// the evaluator has not voted.
func (t *Tx) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	var e models.Evaluation
	err := t.q.QueryRowContext(ctx,
		`SELECT id, suggestion_id, evaluator_id, value, created_at
		 FROM evaluations WHERE id = ?`, id,
	).Scan(&e.ID, &e.SuggestionID, &e.EvaluatorID, &e.Value, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Databasef("select evaluation", err)
	}
	return &e, nil
}

// UpsertEvaluation writes an evaluation keyed by its deterministic ID,
// replacing any prior vote by the same evaluator on the same suggestion.
func (t *Tx) UpsertEvaluation(ctx context.Context, e *models.Evaluation) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO evaluations (id, suggestion_id, evaluator_id, value, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET value = excluded.value`,
		e.ID, e.SuggestionID, e.EvaluatorID, e.Value, e.CreatedAt,
	)
	if err != nil {
		return errdefs.Databasef("upsert evaluation", err)
	}
	return nil
}

// DeleteEvaluation removes a vote. Returns not-found when it does not exist.
func (t *Tx) DeleteEvaluation(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM evaluations WHERE id = ?`, id)
	if err != nil {
		return errdefs.Databasef("delete evaluation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFoundf("evaluation %s", id)
	}
	return nil
}
