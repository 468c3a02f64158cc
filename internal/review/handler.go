// Package review applies admin decisions to the replacement queue and
// restores prior paragraph versions. Every decision runs in one write
// transaction so the paragraph update, queue transition, history entry, and
// audit record land together or not at all.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/access"
	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/history"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// Handler executes approve, reject, and rollback decisions.
type Handler struct {
	db      *storage.Store
	history *history.Store
	access  access.Resolver
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a decision handler.
func New(db *storage.Store, hist *history.Store, resolver access.Resolver, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{db: db, history: hist, access: resolver, logger: logger, metrics: m}
}

// Approve applies a pending replacement to its paragraph: the outgoing text
// is archived at its current version, the proposed (or admin-edited) text
// becomes official at version+1, the item transitions to approved, and an
// audit entry is written. adminEditedText substitutes for the proposed text
// only when the document allows admin edits.
//
// Approving an already-resolved item returns the resolved item together with
// a conflict error; the paragraph is not touched again.
func (h *Handler) Approve(ctx context.Context, actor models.Actor, queueID, adminEditedText, adminNotes string) (*models.PendingReplacement, error) {
	var resolved *models.PendingReplacement

	err := h.db.WithTx(ctx, func(tx *storage.Tx) error {
		item, err := tx.GetQueueItem(ctx, queueID)
		if err != nil {
			return err
		}
		if err := h.access.Can(ctx, actor, access.ActionReview, item.DocumentID); err != nil {
			return err
		}
		if item.Status.Terminal() {
			resolved = item
			return errdefs.Conflictf("queue item %s already %s", queueID, item.Status)
		}

		doc, err := tx.GetDocument(ctx, item.DocumentID)
		if err != nil {
			return err
		}
		finalText := item.ProposedText
		if adminEditedText != "" {
			if !doc.Settings.AllowAdminEdit {
				return errdefs.Forbiddenf("admin edits are disabled for document %s", doc.ID)
			}
			finalText = adminEditedText
		}

		p, err := tx.GetParagraph(ctx, item.ParagraphID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := h.history.Append(ctx, tx, p.ID, p.Text, p.VersionNumber, actor.ID, now, models.ReasonManualApproval); err != nil {
			return err
		}
		newVersion := p.VersionNumber + 1
		if err := tx.FinalizeParagraph(ctx, p.ID, finalText, newVersion, actor.ID, now, models.ReasonManualApproval, item.Consensus); err != nil {
			return err
		}
		if err := tx.ResolveQueueItem(ctx, queueID, models.StatusApproved, actor.ID, adminNotes, now); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &models.AuditEntry{
			ID:          uuid.NewString(),
			DocumentID:  item.DocumentID,
			ParagraphID: item.ParagraphID,
			Action:      models.AuditReplacementApproved,
			QueueID:     queueID,
			FromVersion: p.VersionNumber,
			ToVersion:   newVersion,
			ActorID:     actor.ID,
			Notes:       adminNotes,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := h.history.PruneIfNeeded(ctx, tx, p.ID, doc.Settings); err != nil {
			return err
		}

		resolved, err = tx.GetQueueItem(ctx, queueID)
		return err
	})
	if err != nil {
		return resolved, err
	}

	h.metrics.QueueTransitionsTotal.WithLabelValues(string(models.StatusApproved)).Inc()
	h.logger.Info("replacement approved",
		zap.String("queue_id", queueID),
		zap.String("paragraph_id", resolved.ParagraphID),
		zap.String("actor_id", actor.ID))
	return resolved, nil
}

// Reject declines a pending replacement without touching the paragraph.
// Notes are required so the decision is explainable afterwards.
func (h *Handler) Reject(ctx context.Context, actor models.Actor, queueID, adminNotes string) (*models.PendingReplacement, error) {
	if adminNotes == "" {
		return nil, errdefs.Validationf("rejection requires notes")
	}

	var resolved *models.PendingReplacement
	err := h.db.WithTx(ctx, func(tx *storage.Tx) error {
		item, err := tx.GetQueueItem(ctx, queueID)
		if err != nil {
			return err
		}
		if err := h.access.Can(ctx, actor, access.ActionReview, item.DocumentID); err != nil {
			return err
		}
		if item.Status.Terminal() {
			resolved = item
			return errdefs.Conflictf("queue item %s already %s", queueID, item.Status)
		}

		now := time.Now().UTC()
		if err := tx.ResolveQueueItem(ctx, queueID, models.StatusRejected, actor.ID, adminNotes, now); err != nil {
			return err
		}
		p, err := tx.GetParagraph(ctx, item.ParagraphID)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &models.AuditEntry{
			ID:          uuid.NewString(),
			DocumentID:  item.DocumentID,
			ParagraphID: item.ParagraphID,
			Action:      models.AuditReplacementRejected,
			QueueID:     queueID,
			FromVersion: p.VersionNumber,
			ToVersion:   p.VersionNumber,
			ActorID:     actor.ID,
			Notes:       adminNotes,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		resolved, err = tx.GetQueueItem(ctx, queueID)
		return err
	})
	if err != nil {
		return resolved, err
	}

	h.metrics.QueueTransitionsTotal.WithLabelValues(string(models.StatusRejected)).Inc()
	h.logger.Info("replacement rejected",
		zap.String("queue_id", queueID),
		zap.String("actor_id", actor.ID))
	return resolved, nil
}

// Rollback restores a paragraph to the text of a stored historical version.
// The restore is itself a new version: the current text is archived and the
// paragraph moves to version+1 carrying the old text, so history never forks.
func (h *Handler) Rollback(ctx context.Context, actor models.Actor, paragraphID string, targetVersion int, notes string) (*models.Paragraph, error) {
	var restored *models.Paragraph

	err := h.db.WithTx(ctx, func(tx *storage.Tx) error {
		p, err := tx.GetParagraph(ctx, paragraphID)
		if err != nil {
			return err
		}
		if err := h.access.Can(ctx, actor, access.ActionRollback, p.DocumentID); err != nil {
			return err
		}
		if targetVersion == p.VersionNumber {
			return errdefs.Validationf("version %d is already current", targetVersion)
		}

		text, err := h.history.ResolveVersionText(ctx, tx, paragraphID, targetVersion)
		if err != nil {
			return err
		}
		doc, err := tx.GetDocument(ctx, p.DocumentID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := h.history.Append(ctx, tx, p.ID, p.Text, p.VersionNumber, actor.ID, now, models.ReasonRollback); err != nil {
			return err
		}
		newVersion := p.VersionNumber + 1
		if err := tx.FinalizeParagraph(ctx, p.ID, text, newVersion, actor.ID, now, models.ReasonRollback, 0); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &models.AuditEntry{
			ID:          uuid.NewString(),
			DocumentID:  p.DocumentID,
			ParagraphID: paragraphID,
			Action:      models.AuditRollbackApplied,
			FromVersion: p.VersionNumber,
			ToVersion:   targetVersion,
			ActorID:     actor.ID,
			Notes:       notes,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := h.history.PruneIfNeeded(ctx, tx, paragraphID, doc.Settings); err != nil {
			return err
		}

		restored, err = tx.GetParagraph(ctx, paragraphID)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.metrics.RollbacksTotal.Inc()
	h.logger.Info("rollback applied",
		zap.String("paragraph_id", paragraphID),
		zap.Int("restored_version", targetVersion),
		zap.Int("new_version", restored.VersionNumber),
		zap.String("actor_id", actor.ID))
	return restored, nil
}
