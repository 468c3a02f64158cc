package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/models"
)

const queueColumns = `id, document_id, paragraph_id, suggestion_id, current_text,
	proposed_text, consensus, consensus_at_creation, evaluation_count, status,
	created_at, resolved_at, resolved_by, admin_notes`

func scanQueueItem(row interface{ Scan(...interface{}) error }) (*models.PendingReplacement, error) {
	var item models.PendingReplacement
	var status string
	err := row.Scan(&item.ID, &item.DocumentID, &item.ParagraphID, &item.SuggestionID,
		&item.CurrentText, &item.ProposedText, &item.Consensus, &item.ConsensusAtCreation,
		&item.EvaluationCount, &status, &item.CreatedAt, &item.ResolvedAt,
		&item.ResolvedBy, &item.AdminNotes)
	if err != nil {
		return nil, err
	}
	item.Status = models.QueueStatus(status)
	return &item, nil
}

// CreateQueueItem inserts a pending replacement. The partial unique index on
// pending rows enforces one pending item per paragraph at the store level.
func (t *Tx) CreateQueueItem(ctx context.Context, item *models.PendingReplacement) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO replacement_queue (id, document_id, paragraph_id, suggestion_id,
		    current_text, proposed_text, consensus, consensus_at_creation,
		    evaluation_count, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.DocumentID, item.ParagraphID, item.SuggestionID,
		item.CurrentText, item.ProposedText, item.Consensus, item.ConsensusAtCreation,
		item.EvaluationCount, string(item.Status), item.CreatedAt,
	)
	if err != nil {
		return errdefs.Databasef("insert queue item", err)
	}
	return nil
}

// GetQueueItem returns a queue item by ID.
func (t *Tx) GetQueueItem(ctx context.Context, id string) (*models.PendingReplacement, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM replacement_queue WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundf("queue item %s", id)
	}
	if err != nil {
		return nil, errdefs.Databasef("select queue item", err)
	}
	return item, nil
}

// PendingForParagraph returns the paragraph's pending item, or nil.
func (t *Tx) PendingForParagraph(ctx context.Context, paragraphID string) (*models.PendingReplacement, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM replacement_queue
		 WHERE paragraph_id = ? AND status = 'pending'`, paragraphID)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.Databasef("select pending queue item", err)
	}
	return item, nil
}

// RefreshQueueItem updates a pending item in place with the latest winning
// suggestion, consensus, and vote count.
func (t *Tx) RefreshQueueItem(ctx context.Context, id, suggestionID, proposedText string, consensus float64, evaluationCount int) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE replacement_queue SET suggestion_id = ?, proposed_text = ?,
		    consensus = ?, evaluation_count = ?
		 WHERE id = ? AND status = 'pending'`,
		suggestionID, proposedText, consensus, evaluationCount, id,
	)
	if err != nil {
		return errdefs.Databasef("refresh queue item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.Conflictf("queue item %s is not pending", id)
	}
	return nil
}

// ResolveQueueItem transitions a pending item to a terminal status. The
// status guard in the WHERE clause makes the losing side of a race observe
// zero affected rows instead of double-applying.
func (t *Tx) ResolveQueueItem(ctx context.Context, id string, to models.QueueStatus, resolvedBy, notes string, at time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE replacement_queue SET status = ?, resolved_at = ?, resolved_by = ?, admin_notes = ?
		 WHERE id = ? AND status = 'pending'`,
		string(to), at, resolvedBy, notes, id,
	)
	if err != nil {
		return errdefs.Databasef("resolve queue item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.Conflictf("queue item %s is not pending", id)
	}
	return nil
}

// ExpirePendingForSuggestion marks any pending item carrying the suggestion
// as expired. Returns the number of items expired.
func (t *Tx) ExpirePendingForSuggestion(ctx context.Context, suggestionID string, at time.Time) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE replacement_queue SET status = 'expired', resolved_at = ?
		 WHERE suggestion_id = ? AND status = 'pending'`, at, suggestionID)
	if err != nil {
		return 0, errdefs.Databasef("expire queue items", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// HasRejectionForSuggestion reports whether the suggestion was ever rejected.
// Consulted when the document blocks resubmission after rejection.
func (t *Tx) HasRejectionForSuggestion(ctx context.Context, suggestionID string) (bool, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replacement_queue WHERE suggestion_id = ? AND status = 'rejected'`,
		suggestionID).Scan(&n)
	if err != nil {
		return false, errdefs.Databasef("count rejections", err)
	}
	return n > 0, nil
}

// queueSortColumns maps API sort keys to columns. Anything else falls back
// to created_at.
var queueSortColumns = map[string]string{
	"created_at":       "created_at",
	"consensus":        "consensus",
	"evaluation_count": "evaluation_count",
	"resolved_at":      "resolved_at",
}

// ListQueue returns a document's queue items sorted by the given key.
func (t *Tx) ListQueue(ctx context.Context, documentID, sortBy, order string) ([]*models.PendingReplacement, error) {
	col, ok := queueSortColumns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if order == "asc" {
		dir = "ASC"
	}
	rows, err := t.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM replacement_queue WHERE document_id = ? ORDER BY %s %s`,
			queueColumns, col, dir), documentID)
	if err != nil {
		return nil, errdefs.Databasef("list queue", err)
	}
	defer rows.Close()

	var items []*models.PendingReplacement
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, errdefs.Databasef("scan queue item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Databasef("list queue", err)
	}
	return items, nil
}

// CountPending returns the number of pending queue items across documents.
func (t *Tx) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replacement_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, errdefs.Databasef("count pending", err)
	}
	return n, nil
}
