package evaluation

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/consensus"
	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// recordingGate captures queue notifications.
type recordingGate struct {
	calls []*models.Suggestion
}

func (g *recordingGate) Consider(_ context.Context, _ *storage.Tx, sug *models.Suggestion) error {
	copied := *sug
	g.calls = append(g.calls, &copied)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *storage.Store, *recordingGate) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	err = db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateDocument(ctx, &models.Document{
			ID: "d1", OwnerID: "owner-1",
			Settings: models.VersionControlSettings{Enabled: true, ReviewThreshold: 0.5},
		}); err != nil {
			return err
		}
		if err := tx.CreateParagraph(ctx, &models.Paragraph{
			ID: "p1", DocumentID: "d1", Text: "official", VersionNumber: 1,
		}); err != nil {
			return err
		}
		return tx.CreateSuggestion(ctx, &models.Suggestion{
			ID: "s1", ParagraphID: "p1", DocumentID: "d1", Text: "proposal", CreatorID: "author",
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	gate := &recordingGate{}
	l := New(db, zap.NewNop(), metrics.NewWith(prometheus.NewRegistry()), gate)
	return l, db, gate
}

func TestLedger_CastAndRecompute(t *testing.T) {
	l, _, gate := newTestLedger(t)
	ctx := context.Background()

	res, err := l.Cast(ctx, models.Actor{ID: "u1", Role: models.RoleEditor}, "s1", Agree)
	if err != nil {
		t.Fatal(err)
	}
	if res.AgreeCount != 1 || res.DisagreeCount != 0 || res.EvaluationCount != 1 {
		t.Errorf("result: %+v", res)
	}
	want := consensus.Score(1, 0)
	if math.Abs(res.Consensus-want) > 1e-9 {
		t.Errorf("consensus = %f, want %f", res.Consensus, want)
	}
	if len(gate.calls) != 1 {
		t.Fatalf("gate notified %d times, want 1", len(gate.calls))
	}
	if gate.calls[0].Consensus != res.Consensus {
		t.Error("gate saw stale consensus")
	}
}

func TestLedger_CastRejectsBadValue(t *testing.T) {
	l, _, _ := newTestLedger(t)
	for _, v := range []int{0, 2, -2, 5} {
		_, err := l.Cast(context.Background(), models.Actor{ID: "u1"}, "s1", v)
		if !errors.Is(err, errdefs.ErrValidation) {
			t.Errorf("value %d: expected validation error, got %v", v, err)
		}
	}
}

func TestLedger_CastRejectsSelfEvaluation(t *testing.T) {
	l, _, gate := newTestLedger(t)
	_, err := l.Cast(context.Background(), models.Actor{ID: "author"}, "s1", Agree)
	if !errors.Is(err, errdefs.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(gate.calls) != 0 {
		t.Error("gate should not be notified on rejection")
	}
}

func TestLedger_CastMissingSuggestion(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.Cast(context.Background(), models.Actor{ID: "u1"}, "nope", Agree)
	if !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestLedger_ChangedVoteMovesBothCounters(t *testing.T) {
	l, db, _ := newTestLedger(t)
	ctx := context.Background()
	actor := models.Actor{ID: "u1"}

	if _, err := l.Cast(ctx, actor, "s1", Agree); err != nil {
		t.Fatal(err)
	}
	res, err := l.Cast(ctx, actor, "s1", Disagree)
	if err != nil {
		t.Fatal(err)
	}
	if res.AgreeCount != 0 || res.DisagreeCount != 1 || res.EvaluationCount != 1 {
		t.Errorf("after vote change: %+v", res)
	}

	// A repeated identical vote changes nothing.
	res, err = l.Cast(ctx, actor, "s1", Disagree)
	if err != nil {
		t.Fatal(err)
	}
	if res.AgreeCount != 0 || res.DisagreeCount != 1 {
		t.Errorf("after repeat vote: %+v", res)
	}

	// The stored row matches the incremental counters.
	agree, disagree, err := db.Read().CountEvaluations(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if agree != 0 || disagree != 1 {
		t.Errorf("stored votes %d/%d, want 0/1", agree, disagree)
	}
}

func TestLedger_Withdraw(t *testing.T) {
	l, _, gate := newTestLedger(t)
	ctx := context.Background()
	actor := models.Actor{ID: "u1"}

	if _, err := l.Cast(ctx, actor, "s1", Agree); err != nil {
		t.Fatal(err)
	}
	res, err := l.Withdraw(ctx, actor, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if res.AgreeCount != 0 || res.EvaluationCount != 0 || res.Consensus != 0 {
		t.Errorf("after withdraw: %+v", res)
	}
	if len(gate.calls) != 2 {
		t.Errorf("gate notified %d times, want 2", len(gate.calls))
	}

	// Withdrawing a vote that does not exist is not found.
	if _, err := l.Withdraw(ctx, actor, "s1"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestLedger_BackfillsLegacyCounters(t *testing.T) {
	l, db, _ := newTestLedger(t)
	ctx := context.Background()

	// A legacy suggestion with votes but uninitialized counters.
	err := db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateLegacySuggestion(ctx, &models.Suggestion{
			ID: "legacy", ParagraphID: "p1", DocumentID: "d1", Text: "old", CreatorID: "author",
		}); err != nil {
			return err
		}
		for _, e := range []models.Evaluation{
			{ID: models.EvaluationID("v1", "legacy"), SuggestionID: "legacy", EvaluatorID: "v1", Value: 1},
			{ID: models.EvaluationID("v2", "legacy"), SuggestionID: "legacy", EvaluatorID: "v2", Value: 1},
			{ID: models.EvaluationID("v3", "legacy"), SuggestionID: "legacy", EvaluatorID: "v3", Value: -1},
		} {
			eval := e
			if err := tx.UpsertEvaluation(ctx, &eval); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.Cast(ctx, models.Actor{ID: "u9"}, "legacy", Agree)
	if err != nil {
		t.Fatal(err)
	}
	// Backfill found 2/1, then the new vote incremented on top.
	if res.AgreeCount != 3 || res.DisagreeCount != 1 {
		t.Errorf("after backfill + cast: %+v", res)
	}

	// Counters are initialized now; the next vote stays incremental.
	sug, initialized, err := db.Read().GetSuggestion(ctx, "legacy")
	if err != nil {
		t.Fatal(err)
	}
	if !initialized {
		t.Error("counters should be marked initialized")
	}
	if sug.AgreeCount != 3 || sug.DisagreeCount != 1 {
		t.Errorf("stored counters: %d/%d", sug.AgreeCount, sug.DisagreeCount)
	}
}
