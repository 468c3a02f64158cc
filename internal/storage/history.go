package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/models"
)

const historyColumns = `id, paragraph_id, version_number, storage_class, text,
	payload, finalized_by, finalized_at, finalized_reason, hide`

func scanHistoryEntry(row interface{ Scan(...interface{}) error }) (*models.VersionHistoryEntry, error) {
	var e models.VersionHistoryEntry
	var class, reason string
	var finalizedAt sql.NullTime
	err := row.Scan(&e.ID, &e.ParagraphID, &e.VersionNumber, &class, &e.Text,
		&e.CompressedPayload, &e.FinalizedBy, &finalizedAt, &reason, &e.Hide)
	if err != nil {
		return nil, err
	}
	e.StorageClass = models.StorageClass(class)
	e.FinalizedReason = models.FinalizedReason(reason)
	if finalizedAt.Valid {
		e.FinalizedAt = finalizedAt.Time
	}
	return &e, nil
}

// InsertHistoryEntry appends a version history row. New entries are always
// written as recent plain text; archiving happens during pruning.
func (t *Tx) InsertHistoryEntry(ctx context.Context, e *models.VersionHistoryEntry) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO version_history (id, paragraph_id, version_number, storage_class,
		    text, payload, finalized_by, finalized_at, finalized_reason, hide)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ParagraphID, e.VersionNumber, string(e.StorageClass),
		e.Text, e.CompressedPayload, e.FinalizedBy, e.FinalizedAt,
		string(e.FinalizedReason), e.Hide,
	)
	if err != nil {
		return errdefs.Databasef("insert history entry", err)
	}
	return nil
}

// ListHistory returns all history rows for a paragraph, newest version first.
func (t *Tx) ListHistory(ctx context.Context, paragraphID string) ([]*models.VersionHistoryEntry, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM version_history
		 WHERE paragraph_id = ? ORDER BY version_number DESC`, paragraphID)
	if err != nil {
		return nil, errdefs.Databasef("list history", err)
	}
	defer rows.Close()

	var out []*models.VersionHistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, errdefs.Databasef("scan history entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Databasef("list history", err)
	}
	return out, nil
}

// GetHistoryByVersion returns one history row for a paragraph version.
func (t *Tx) GetHistoryByVersion(ctx context.Context, paragraphID string, version int) (*models.VersionHistoryEntry, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM version_history
		 WHERE paragraph_id = ? AND version_number = ?`, paragraphID, version)
	e, err := scanHistoryEntry(row)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundf("version %d of paragraph %s", version, paragraphID)
	}
	if err != nil {
		return nil, errdefs.Databasef("select history entry", err)
	}
	return e, nil
}

// OldestRecent returns the oldest `limit` recent entries, oldest first.
// The pruning pass compresses these into archived entries.
func (t *Tx) OldestRecent(ctx context.Context, paragraphID string, limit int) ([]*models.VersionHistoryEntry, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM version_history
		 WHERE paragraph_id = ? AND storage_class = 'recent'
		 ORDER BY version_number ASC LIMIT ?`, paragraphID, limit)
	if err != nil {
		return nil, errdefs.Databasef("select oldest recent entries", err)
	}
	defer rows.Close()

	var out []*models.VersionHistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, errdefs.Databasef("scan history entry", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ArchiveHistoryEntry re-tags a recent entry as archived, storing the
// compressed payload and clearing the plain text.
func (t *Tx) ArchiveHistoryEntry(ctx context.Context, id, payload string) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE version_history SET storage_class = 'archived', payload = ?, text = ''
		 WHERE id = ?`, payload, id)
	if err != nil {
		return errdefs.Databasef("archive history entry", err)
	}
	return nil
}

// DeleteOldestArchived hard-deletes the oldest `limit` archived entries.
// Returns the number deleted.
func (t *Tx) DeleteOldestArchived(ctx context.Context, paragraphID string, limit int) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`DELETE FROM version_history WHERE id IN (
		    SELECT id FROM version_history
		    WHERE paragraph_id = ? AND storage_class = 'archived'
		    ORDER BY version_number ASC LIMIT ?)`, paragraphID, limit)
	if err != nil {
		return 0, errdefs.Databasef("delete archived entries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountHistory returns recent and total entry counts for a paragraph.
func (t *Tx) CountHistory(ctx context.Context, paragraphID string) (recent, total int, err error) {
	err = t.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN storage_class = 'recent' THEN 1 ELSE 0 END), 0), COUNT(*)
		 FROM version_history WHERE paragraph_id = ?`, paragraphID,
	).Scan(&recent, &total)
	if err != nil {
		return 0, 0, errdefs.Databasef("count history", err)
	}
	return recent, total, nil
}

// AppendAudit inserts an audit log entry.
func (t *Tx) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO audit_log (id, document_id, paragraph_id, action, queue_id,
		    from_version, to_version, actor_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DocumentID, e.ParagraphID, string(e.Action), e.QueueID,
		e.FromVersion, e.ToVersion, e.ActorID, e.Notes, e.CreatedAt,
	)
	if err != nil {
		return errdefs.Databasef("insert audit entry", err)
	}
	return nil
}

// ListAudit returns a paragraph's audit entries, newest first.
func (t *Tx) ListAudit(ctx context.Context, paragraphID string) ([]*models.AuditEntry, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, document_id, paragraph_id, action, queue_id, from_version,
		    to_version, actor_id, notes, created_at
		 FROM audit_log WHERE paragraph_id = ? ORDER BY created_at DESC, id`, paragraphID)
	if err != nil {
		return nil, errdefs.Databasef("list audit", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var action string
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.ParagraphID, &action, &e.QueueID,
			&e.FromVersion, &e.ToVersion, &e.ActorID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, errdefs.Databasef("scan audit entry", err)
		}
		e.Action = models.AuditAction(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}
