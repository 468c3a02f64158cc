package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/models"
)

// CreateDocument inserts a document with its version-control settings.
func (t *Tx) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO documents (id, title, owner_id, vc_enabled, review_threshold,
		    allow_admin_edit, max_recent_versions, max_total_versions,
		    reject_blocks_resubmission, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.OwnerID,
		doc.Settings.Enabled, doc.Settings.ReviewThreshold, doc.Settings.AllowAdminEdit,
		doc.Settings.MaxRecentVersions, doc.Settings.MaxTotalVersions,
		doc.Settings.RejectBlocksResubmission, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return errdefs.Databasef("insert document", err)
	}
	return nil
}

// GetDocument returns a document (with settings) by ID.
func (t *Tx) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := t.q.QueryRowContext(ctx,
		`SELECT id, title, owner_id, vc_enabled, review_threshold, allow_admin_edit,
		    max_recent_versions, max_total_versions, reject_blocks_resubmission,
		    created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.OwnerID,
		&doc.Settings.Enabled, &doc.Settings.ReviewThreshold, &doc.Settings.AllowAdminEdit,
		&doc.Settings.MaxRecentVersions, &doc.Settings.MaxTotalVersions,
		&doc.Settings.RejectBlocksResubmission, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundf("document %s", id)
	}
	if err != nil {
		return nil, errdefs.Databasef("select document", err)
	}
	return &doc, nil
}

// CreateParagraph inserts a paragraph at version 1.
func (t *Tx) CreateParagraph(ctx context.Context, p *models.Paragraph) error {
	if p.VersionNumber == 0 {
		p.VersionNumber = 1
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO paragraphs (id, document_id, text, ord, version_number,
		    finalized_by, finalized_at, finalized_reason, consensus)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DocumentID, p.Text, p.Order, p.VersionNumber,
		p.FinalizedBy, p.FinalizedAt, string(p.FinalizedReason), p.Consensus,
	)
	if err != nil {
		return errdefs.Databasef("insert paragraph", err)
	}
	return nil
}

// GetParagraph returns a paragraph by ID.
func (t *Tx) GetParagraph(ctx context.Context, id string) (*models.Paragraph, error) {
	var p models.Paragraph
	var reason string
	err := t.q.QueryRowContext(ctx,
		`SELECT id, document_id, text, ord, version_number, finalized_by,
		    finalized_at, finalized_reason, consensus
		 FROM paragraphs WHERE id = ?`, id,
	).Scan(&p.ID, &p.DocumentID, &p.Text, &p.Order, &p.VersionNumber,
		&p.FinalizedBy, &p.FinalizedAt, &reason, &p.Consensus)
	if err == sql.ErrNoRows {
		return nil, errdefs.NotFoundf("paragraph %s", id)
	}
	if err != nil {
		return nil, errdefs.Databasef("select paragraph", err)
	}
	p.FinalizedReason = models.FinalizedReason(reason)
	return &p, nil
}

// FinalizeParagraph applies new official text: text, version bump, and
// finalization metadata in one statement. Only the review handler calls this.
func (t *Tx) FinalizeParagraph(ctx context.Context, id, text string, version int, by string, at time.Time, reason models.FinalizedReason, consensus float64) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE paragraphs SET text = ?, version_number = ?, finalized_by = ?,
		    finalized_at = ?, finalized_reason = ?, consensus = ?
		 WHERE id = ?`,
		text, version, by, at, string(reason), consensus, id,
	)
	if err != nil {
		return errdefs.Databasef("finalize paragraph", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errdefs.NotFoundf("paragraph %s", id)
	}
	return nil
}

// ListParagraphs returns a document's paragraphs in display order.
func (t *Tx) ListParagraphs(ctx context.Context, documentID string) ([]*models.Paragraph, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, document_id, text, ord, version_number, finalized_by,
		    finalized_at, finalized_reason, consensus
		 FROM paragraphs WHERE document_id = ? ORDER BY ord`, documentID)
	if err != nil {
		return nil, errdefs.Databasef("list paragraphs", err)
	}
	defer rows.Close()

	var out []*models.Paragraph
	for rows.Next() {
		var p models.Paragraph
		var reason string
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Text, &p.Order, &p.VersionNumber,
			&p.FinalizedBy, &p.FinalizedAt, &reason, &p.Consensus); err != nil {
			return nil, errdefs.Databasef("scan paragraph", err)
		}
		p.FinalizedReason = models.FinalizedReason(reason)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Databasef("list paragraphs", err)
	}
	return out, nil
}
