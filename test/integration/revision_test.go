// Package integration exercises the full revision pipeline against real
// storage: votes through the ledger, queue gating, admin decisions, version
// history, and rollback.
package integration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/access"
	"github.com/hyperjump/naosu/internal/errdefs"
	"github.com/hyperjump/naosu/internal/evaluation"
	"github.com/hyperjump/naosu/internal/history"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/queue"
	"github.com/hyperjump/naosu/internal/review"
	"github.com/hyperjump/naosu/internal/storage"
)

type stack struct {
	db      *storage.Store
	ledger  *evaluation.Ledger
	queue   *queue.Queue
	history *history.Store
	review  *review.Handler
}

var (
	admin = models.Actor{ID: "adm-1", Role: models.RoleAdmin}
	owner = models.Actor{ID: "own-1", Role: models.RoleOwner}
)

func newStack(t *testing.T, settings models.VersionControlSettings) *stack {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "naosu.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	err = db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateDocument(ctx, &models.Document{
			ID: "d1", Title: "Handbook", OwnerID: "own-1", Settings: settings,
		}); err != nil {
			return err
		}
		return tx.CreateParagraph(ctx, &models.Paragraph{
			ID: "p1", DocumentID: "d1", Text: "version one text", VersionNumber: 1,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.NewWith(prometheus.NewRegistry())
	logger := zap.NewNop()
	q := queue.New(db, logger, m, 5, 0.5)
	ledger := evaluation.New(db, logger, m, q)
	hist := history.New(db, logger, m, 10)
	rev := review.New(db, hist, access.NewRoleResolver(db), logger, m)
	return &stack{db: db, ledger: ledger, queue: q, history: hist, review: rev}
}

func (s *stack) newSuggestion(t *testing.T, id, text string) {
	t.Helper()
	ctx := context.Background()
	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.CreateSuggestion(ctx, &models.Suggestion{
			ID: id, ParagraphID: "p1", DocumentID: "d1", Text: text, CreatorID: "author-1",
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (s *stack) agreeN(t *testing.T, suggestionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		voter := models.Actor{ID: fmt.Sprintf("voter-%d", i), Role: models.RoleViewer}
		if _, err := s.ledger.Cast(context.Background(), voter, suggestionID, evaluation.Agree); err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
	}
}

func (s *stack) pendingItem(t *testing.T) *models.PendingReplacement {
	t.Helper()
	item, err := s.db.Read().PendingForParagraph(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	return item
}

// approveCurrent queues a suggestion through votes and approves it.
func (s *stack) approveCurrent(t *testing.T, suggestionID, text string) {
	t.Helper()
	s.newSuggestion(t, suggestionID, text)
	s.agreeN(t, suggestionID, 5)
	item := s.pendingItem(t)
	if item == nil {
		t.Fatalf("suggestion %s did not reach the queue", suggestionID)
	}
	if _, err := s.review.Approve(context.Background(), admin, item.ID, "", ""); err != nil {
		t.Fatalf("approve %s: %v", suggestionID, err)
	}
}

func TestRevisionFlow(t *testing.T) {
	s := newStack(t, models.VersionControlSettings{Enabled: true, ReviewThreshold: 0.5})
	ctx := context.Background()
	s.newSuggestion(t, "s1", "version two text")

	// four agree votes clear neither the gate floor nor the threshold safely
	s.agreeN(t, "s1", 4)
	if item := s.pendingItem(t); item != nil {
		t.Fatalf("queued with only 4 evaluations: %+v", item)
	}

	// the fifth unanimous vote pushes the score past 0.5 with enough votes
	s.agreeN(t, "s1", 5)
	item := s.pendingItem(t)
	if item == nil {
		t.Fatal("expected pending item after 5 agree votes")
	}
	if item.ProposedText != "version two text" || item.CurrentText != "version one text" {
		t.Errorf("item texts = %q / %q", item.CurrentText, item.ProposedText)
	}

	resolved, err := s.review.Approve(ctx, admin, item.ID, "", "fine")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.Status != models.StatusApproved {
		t.Errorf("status = %s", resolved.Status)
	}

	p, err := s.db.Read().GetParagraph(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Text != "version two text" || p.VersionNumber != 2 {
		t.Errorf("paragraph = %q v%d, want version two text v2", p.Text, p.VersionNumber)
	}

	listing, err := s.history.List(ctx, "p1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if listing.Total != 2 {
		t.Errorf("history total = %d, want 2 (current + archived v1)", listing.Total)
	}
	if listing.Entries[0].VersionNumber != 2 || !listing.Entries[0].Current {
		t.Errorf("first entry = %+v, want current v2", listing.Entries[0])
	}
	if listing.Entries[1].VersionNumber != 1 || listing.Entries[1].Text != "version one text" {
		t.Errorf("second entry = %+v, want v1 original", listing.Entries[1])
	}
}

func TestVersionCountingAcrossApprovalsAndRollback(t *testing.T) {
	s := newStack(t, models.VersionControlSettings{Enabled: true, ReviewThreshold: 0.5})
	ctx := context.Background()

	for i := 2; i <= 6; i++ {
		s.approveCurrent(t, fmt.Sprintf("s%d", i), fmt.Sprintf("version %d text", i))
	}
	p, err := s.db.Read().GetParagraph(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.VersionNumber != 6 {
		t.Fatalf("after 5 approvals version = %d, want 6", p.VersionNumber)
	}

	// rollback is itself a new version, never a rewind
	restored, err := s.review.Rollback(ctx, owner, "p1", 2, "prefer the old wording")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if restored.VersionNumber != 7 {
		t.Errorf("after rollback version = %d, want 7", restored.VersionNumber)
	}
	if restored.Text != "version 2 text" {
		t.Errorf("restored text = %q, want version 2 text", restored.Text)
	}

	// history keeps every archived version with its own number
	listing, err := s.history.List(ctx, "p1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if listing.Total != 7 {
		t.Errorf("history total = %d, want 7", listing.Total)
	}
}

func TestRetentionBudgetsAcrossApprovals(t *testing.T) {
	s := newStack(t, models.VersionControlSettings{
		Enabled: true, ReviewThreshold: 0.5,
		MaxRecentVersions: 2, MaxTotalVersions: 4,
	})
	ctx := context.Background()

	for i := 2; i <= 9; i++ {
		s.approveCurrent(t, fmt.Sprintf("s%d", i), fmt.Sprintf("version %d text", i))
	}

	recent, total, err := s.db.Read().CountHistory(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if recent != 2 || total != 4 {
		t.Errorf("retention = %d recent / %d total, want 2/4", recent, total)
	}

	// the oldest surviving archived version still round-trips through deflate
	entries, err := s.db.Read().ListHistory(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	oldest := entries[len(entries)-1]
	if oldest.StorageClass != models.ClassArchived {
		t.Fatalf("oldest surviving entry class = %s, want archived", oldest.StorageClass)
	}
	text, err := history.Decompress(oldest.CompressedPayload)
	if err != nil {
		t.Fatalf("decompress oldest: %v", err)
	}
	if want := fmt.Sprintf("version %d text", oldest.VersionNumber); text != want {
		t.Errorf("oldest text = %q, want %q", text, want)
	}
}

func TestConcurrentApproveOneWins(t *testing.T) {
	s := newStack(t, models.VersionControlSettings{Enabled: true, ReviewThreshold: 0.5})
	ctx := context.Background()
	s.newSuggestion(t, "s1", "contested text")
	s.agreeN(t, "s1", 6)
	item := s.pendingItem(t)
	if item == nil {
		t.Fatal("expected pending item")
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.review.Approve(ctx, admin, item.ID, "", "")
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, errdefs.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes = %d, conflicts = %d, want exactly one of each", successes, conflicts)
	}

	// exactly one replacement took effect
	p, err := s.db.Read().GetParagraph(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.VersionNumber != 2 {
		t.Errorf("version = %d, want 2", p.VersionNumber)
	}
	_, total, err := s.db.Read().CountHistory(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("history rows = %d, want 1", total)
	}
}

func TestSuggestionDeletionExpiresPending(t *testing.T) {
	s := newStack(t, models.VersionControlSettings{Enabled: true, ReviewThreshold: 0.5})
	ctx := context.Background()
	s.newSuggestion(t, "s1", "doomed text")
	s.agreeN(t, "s1", 5)
	item := s.pendingItem(t)
	if item == nil {
		t.Fatal("expected pending item")
	}

	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := s.queue.ExpireForSuggestion(ctx, tx, "s1"); err != nil {
			return err
		}
		return tx.DeleteSuggestion(ctx, "s1")
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.db.Read().GetQueueItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}

	// an expired item can no longer be approved
	if _, err := s.review.Approve(ctx, admin, item.ID, "", ""); !errors.Is(err, errdefs.ErrConflict) {
		t.Errorf("approve expired err = %v, want conflict", err)
	}
}
