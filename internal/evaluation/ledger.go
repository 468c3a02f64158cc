// Package evaluation implements the evaluation ledger: it records
// agree/disagree votes on suggestions, keeps the per-suggestion counters
// consistent through atomic increments, recomputes consensus after every
// mutation, and notifies the replacement queue to re-test its gate.
package evaluation

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/consensus"
	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// Agree and Disagree are the only legal evaluation values.
const (
	Agree    = 1
	Disagree = -1
)

// Gate is notified after every consensus change so the replacement queue can
// re-test its threshold inside the same transaction. Implemented by
// queue.Queue.
type Gate interface {
	Consider(ctx context.Context, tx *storage.Tx, sug *models.Suggestion) error
}

// Ledger tallies votes on suggestions.
type Ledger struct {
	db      *storage.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	gate    Gate
}

// New creates a ledger. gate may be nil when no queue is attached (tests).
func New(db *storage.Store, logger *zap.Logger, m *metrics.Metrics, gate Gate) *Ledger {
	return &Ledger{db: db, logger: logger, metrics: m, gate: gate}
}

// Result reports the suggestion's state after a ledger mutation.
type Result struct {
	SuggestionID    string  `json:"suggestion_id"`
	AgreeCount      int     `json:"agree_count"`
	DisagreeCount   int     `json:"disagree_count"`
	EvaluationCount int     `json:"evaluation_count"`
	Consensus       float64 `json:"consensus"`
}

// Cast records or replaces the actor's vote on a suggestion. The evaluation
// id is deterministic, so a repeat vote upserts rather than duplicating;
// counters move by increments, never a recount. Self-evaluation is rejected.
func (l *Ledger) Cast(ctx context.Context, actor models.Actor, suggestionID string, value int) (*Result, error) {
	if value != Agree && value != Disagree {
		return nil, errdefs.Validationf("evaluation value must be -1 or +1, got %d", value)
	}

	var result *Result
	err := l.db.WithTx(ctx, func(tx *storage.Tx) error {
		sug, err := l.loadBackfilled(ctx, tx, suggestionID)
		if err != nil {
			return err
		}
		if actor.ID == sug.CreatorID {
			return errdefs.Forbiddenf("cannot evaluate own suggestion")
		}

		evalID := models.EvaluationID(actor.ID, suggestionID)
		prior, err := tx.GetEvaluation(ctx, evalID)
		if err != nil {
			return err
		}

		dAgree, dDisagree := 0, 0
		switch {
		case prior == nil:
			if value == Agree {
				dAgree = 1
			} else {
				dDisagree = 1
			}
		case prior.Value == value:
			// Same vote again; nothing moves.
		default:
			if value == Agree {
				dAgree, dDisagree = 1, -1
			} else {
				dAgree, dDisagree = -1, 1
			}
		}

		if err := tx.UpsertEvaluation(ctx, &models.Evaluation{
			ID:           evalID,
			SuggestionID: suggestionID,
			EvaluatorID:  actor.ID,
			Value:        value,
		}); err != nil {
			return err
		}
		if dAgree != 0 || dDisagree != 0 {
			if err := tx.AddSuggestionCounts(ctx, suggestionID, dAgree, dDisagree); err != nil {
				return err
			}
		}
		sug.AgreeCount += dAgree
		sug.DisagreeCount += dDisagree

		result, err = l.recompute(ctx, tx, sug)
		return err
	})
	if err != nil {
		return nil, err
	}

	action := "agree"
	if value == Disagree {
		action = "disagree"
	}
	l.metrics.EvaluationsTotal.WithLabelValues(action).Inc()
	l.logger.Debug("evaluation cast",
		zap.String("suggestion_id", suggestionID),
		zap.String("evaluator_id", actor.ID),
		zap.Int("value", value),
		zap.Float64("consensus", result.Consensus))
	return result, nil
}

// Withdraw removes the actor's vote and decrements symmetrically.
func (l *Ledger) Withdraw(ctx context.Context, actor models.Actor, suggestionID string) (*Result, error) {
	var result *Result
	err := l.db.WithTx(ctx, func(tx *storage.Tx) error {
		sug, err := l.loadBackfilled(ctx, tx, suggestionID)
		if err != nil {
			return err
		}

		evalID := models.EvaluationID(actor.ID, suggestionID)
		prior, err := tx.GetEvaluation(ctx, evalID)
		if err != nil {
			return err
		}
		if prior == nil {
			return errdefs.NotFoundf("no evaluation by %s on suggestion %s", actor.ID, suggestionID)
		}
		if err := tx.DeleteEvaluation(ctx, evalID); err != nil {
			return err
		}

		dAgree, dDisagree := 0, -1
		if prior.Value == Agree {
			dAgree, dDisagree = -1, 0
		}
		if err := tx.AddSuggestionCounts(ctx, suggestionID, dAgree, dDisagree); err != nil {
			return err
		}
		sug.AgreeCount += dAgree
		sug.DisagreeCount += dDisagree

		result, err = l.recompute(ctx, tx, sug)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.metrics.EvaluationsTotal.WithLabelValues("withdrawn").Inc()
	l.logger.Debug("evaluation withdrawn",
		zap.String("suggestion_id", suggestionID),
		zap.String("evaluator_id", actor.ID))
	return result, nil
}

// loadBackfilled loads a suggestion and, for rows created before counter
// tracking existed, rebuilds the counters from its evaluations once.
// Subsequent mutations proceed incrementally.
func (l *Ledger) loadBackfilled(ctx context.Context, tx *storage.Tx, suggestionID string) (*models.Suggestion, error) {
	sug, initialized, err := tx.GetSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if !initialized {
		agree, disagree, err := tx.CountEvaluations(ctx, suggestionID)
		if err != nil {
			return nil, err
		}
		if err := tx.SetSuggestionCounts(ctx, suggestionID, agree, disagree); err != nil {
			return nil, err
		}
		sug.AgreeCount = agree
		sug.DisagreeCount = disagree
		l.logger.Info("backfilled suggestion counters",
			zap.String("suggestion_id", suggestionID),
			zap.Int("agree", agree),
			zap.Int("disagree", disagree))
	}
	return sug, nil
}

// recompute persists the fresh consensus score and notifies the queue gate.
func (l *Ledger) recompute(ctx context.Context, tx *storage.Tx, sug *models.Suggestion) (*Result, error) {
	sug.Consensus = consensus.Score(sug.AgreeCount, sug.DisagreeCount)
	if err := tx.SetSuggestionConsensus(ctx, sug.ID, sug.Consensus); err != nil {
		return nil, err
	}
	if l.gate != nil && sug.ParagraphID != "" {
		if err := l.gate.Consider(ctx, tx, sug); err != nil {
			return nil, err
		}
	}
	return &Result{
		SuggestionID:    sug.ID,
		AgreeCount:      sug.AgreeCount,
		DisagreeCount:   sug.DisagreeCount,
		EvaluationCount: sug.EvaluationCount(),
		Consensus:       sug.Consensus,
	}, nil
}
