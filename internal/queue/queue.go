// Package queue implements the consensus-gated replacement queue. A
// suggestion whose consensus clears the document's review threshold (with
// enough evaluations behind it) produces a pending replacement for its
// paragraph; admins resolve pending items through the review package.
//
// States: pending → approved | rejected; a pending item becomes expired when
// its suggestion is deleted, with no admin action. Terminal states are
// immutable. At most one pending item exists per paragraph.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/consensus"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// Queue gates suggestions into pending replacements.
type Queue struct {
	db      *storage.Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu sync.RWMutex
	// minEvaluations is the sample-size floor before a suggestion is
	// queue-eligible; configured, never hard-coded at call sites.
	minEvaluations int
	// defaultThreshold applies when a document leaves review_threshold unset.
	defaultThreshold float64
}

// New creates a queue.
func New(db *storage.Store, logger *zap.Logger, m *metrics.Metrics, minEvaluations int, defaultThreshold float64) *Queue {
	return &Queue{
		db:               db,
		logger:           logger,
		metrics:          m,
		minEvaluations:   minEvaluations,
		defaultThreshold: defaultThreshold,
	}
}

// Consider re-tests the threshold gate for a suggestion after its consensus
// changed. Creates the paragraph's pending item when the gate is cleared, or
// refreshes the existing pending item in place. Runs inside the caller's
// transaction so the queue transition commits atomically with the vote that
// caused it.
func (q *Queue) Consider(ctx context.Context, tx *storage.Tx, sug *models.Suggestion) error {
	doc, err := tx.GetDocument(ctx, sug.DocumentID)
	if err != nil {
		return err
	}
	if !doc.Settings.Enabled {
		return nil
	}

	q.mu.RLock()
	minEvaluations, defaultThreshold := q.minEvaluations, q.defaultThreshold
	q.mu.RUnlock()

	threshold := doc.Settings.ReviewThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	gate := consensus.Gate{ReviewThreshold: threshold, MinEvaluations: minEvaluations}
	if !gate.Eligible(sug.Consensus, sug.EvaluationCount()) {
		return nil
	}

	if doc.Settings.RejectBlocksResubmission {
		rejected, err := tx.HasRejectionForSuggestion(ctx, sug.ID)
		if err != nil {
			return err
		}
		if rejected {
			q.logger.Debug("suggestion blocked after rejection",
				zap.String("suggestion_id", sug.ID))
			return nil
		}
	}

	pending, err := tx.PendingForParagraph(ctx, sug.ParagraphID)
	if err != nil {
		return err
	}
	if pending != nil {
		if err := tx.RefreshQueueItem(ctx, pending.ID, sug.ID, sug.Text, sug.Consensus, sug.EvaluationCount()); err != nil {
			return err
		}
		q.metrics.QueueTransitionsTotal.WithLabelValues("refreshed").Inc()
		q.logger.Debug("refreshed pending replacement",
			zap.String("queue_id", pending.ID),
			zap.String("suggestion_id", sug.ID),
			zap.Float64("consensus", sug.Consensus))
		return nil
	}

	paragraph, err := tx.GetParagraph(ctx, sug.ParagraphID)
	if err != nil {
		return err
	}
	item := &models.PendingReplacement{
		ID:                  uuid.NewString(),
		DocumentID:          sug.DocumentID,
		ParagraphID:         sug.ParagraphID,
		SuggestionID:        sug.ID,
		CurrentText:         paragraph.Text,
		ProposedText:        sug.Text,
		Consensus:           sug.Consensus,
		ConsensusAtCreation: sug.Consensus,
		EvaluationCount:     sug.EvaluationCount(),
		Status:              models.StatusPending,
		CreatedAt:           time.Now().UTC(),
	}
	if err := tx.CreateQueueItem(ctx, item); err != nil {
		return err
	}
	q.metrics.QueueTransitionsTotal.WithLabelValues("pending").Inc()
	q.logger.Info("created pending replacement",
		zap.String("queue_id", item.ID),
		zap.String("paragraph_id", sug.ParagraphID),
		zap.Float64("consensus", sug.Consensus),
		zap.Int("evaluations", item.EvaluationCount))
	return nil
}

// UpdateGate swaps the gate tuning at runtime; config hot-reload calls this.
func (q *Queue) UpdateGate(minEvaluations int, defaultThreshold float64) {
	q.mu.Lock()
	q.minEvaluations = minEvaluations
	q.defaultThreshold = defaultThreshold
	q.mu.Unlock()
}

// ExpireForSuggestion transitions any pending item carrying the suggestion
// to expired. Called when a suggestion is deleted.
func (q *Queue) ExpireForSuggestion(ctx context.Context, tx *storage.Tx, suggestionID string) error {
	n, err := tx.ExpirePendingForSuggestion(ctx, suggestionID, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		q.metrics.QueueTransitionsTotal.WithLabelValues("expired").Add(float64(n))
		q.logger.Info("expired pending replacements",
			zap.String("suggestion_id", suggestionID),
			zap.Int64("count", n))
	}
	return nil
}

// List returns a document's queue items for the admin dashboard. Reads run
// outside a transaction.
func (q *Queue) List(ctx context.Context, documentID, sortBy, order string) ([]*models.PendingReplacement, error) {
	return q.db.Read().ListQueue(ctx, documentID, sortBy, order)
}
