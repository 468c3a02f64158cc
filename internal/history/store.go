// Package history implements the size-bounded, compressing version history
// store. Every paragraph replacement archives the outgoing text as a recent
// entry; a synchronous pruning pass compresses old recent entries to
// deflate+base64 archived entries and hard-deletes the oldest archived ones
// once the total budget is exceeded. The live paragraph row is never touched.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// DefaultPageSize is the version listing page size when none is configured.
const DefaultPageSize = 10

// Store appends, prunes, and lists paragraph version history.
type Store struct {
	db       *storage.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
	pageSize int
}

// New creates a history store. pageSize <= 0 selects DefaultPageSize.
func New(db *storage.Store, logger *zap.Logger, m *metrics.Metrics, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store{db: db, logger: logger, metrics: m, pageSize: pageSize}
}

// Append writes the outgoing paragraph text as a recent history entry at the
// version it held. Runs inside the caller's transaction.
func (s *Store) Append(ctx context.Context, tx *storage.Tx, paragraphID, text string, versionNumber int, finalizedBy string, at time.Time, reason models.FinalizedReason) error {
	return tx.InsertHistoryEntry(ctx, &models.VersionHistoryEntry{
		ID:              uuid.NewString(),
		ParagraphID:     paragraphID,
		VersionNumber:   versionNumber,
		StorageClass:    models.ClassRecent,
		Text:            text,
		FinalizedBy:     finalizedBy,
		FinalizedAt:     at,
		FinalizedReason: reason,
		Hide:            true,
	})
}

// PruneIfNeeded enforces the retention budgets after an append: excess recent
// entries are compressed and re-tagged archived (oldest first), then excess
// archived entries are hard-deleted (oldest first). Runs inside the caller's
// transaction.
func (s *Store) PruneIfNeeded(ctx context.Context, tx *storage.Tx, paragraphID string, settings models.VersionControlSettings) error {
	settings = settings.WithDefaults()

	recent, total, err := tx.CountHistory(ctx, paragraphID)
	if err != nil {
		return err
	}

	if excess := recent - settings.MaxRecentVersions; excess > 0 {
		oldest, err := tx.OldestRecent(ctx, paragraphID, excess)
		if err != nil {
			return err
		}
		for _, entry := range oldest {
			payload, err := Compress(entry.Text)
			if err != nil {
				return err
			}
			if err := tx.ArchiveHistoryEntry(ctx, entry.ID, payload); err != nil {
				return err
			}
			s.metrics.VersionsArchivedTotal.Inc()
			s.logger.Debug("archived history entry",
				zap.String("paragraph_id", paragraphID),
				zap.Int("version", entry.VersionNumber))
		}
	}

	if excess := total - settings.MaxTotalVersions; excess > 0 {
		deleted, err := tx.DeleteOldestArchived(ctx, paragraphID, excess)
		if err != nil {
			return err
		}
		s.metrics.VersionsPrunedTotal.Add(float64(deleted))
		if deleted > 0 {
			s.logger.Debug("pruned archived history entries",
				zap.String("paragraph_id", paragraphID),
				zap.Int64("deleted", deleted))
		}
	}
	return nil
}

// List returns one page of a paragraph's versions, newest first. The live
// version is synthesized from the paragraph row and flagged current; archived
// entries are decompressed inline. Entries whose payload fails to decompress
// are logged and omitted rather than failing the page. Reads run outside a
// transaction.
func (s *Store) List(ctx context.Context, paragraphID string, page int) (*models.VersionListing, error) {
	if page < 1 {
		page = 1
	}
	r := s.db.Read()

	paragraph, err := r.GetParagraph(ctx, paragraphID)
	if err != nil {
		return nil, err
	}
	rows, err := r.ListHistory(ctx, paragraphID)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.VersionListEntry, 0, len(rows)+1)
	entries = append(entries, &models.VersionListEntry{
		VersionNumber:   paragraph.VersionNumber,
		Text:            paragraph.Text,
		FinalizedBy:     paragraph.FinalizedBy,
		FinalizedAt:     paragraph.FinalizedAt,
		FinalizedReason: paragraph.FinalizedReason,
		Current:         true,
	})
	for _, row := range rows {
		text := row.Text
		archived := row.StorageClass == models.ClassArchived
		if archived {
			text, err = Decompress(row.CompressedPayload)
			if err != nil {
				s.metrics.CorruptedVersionsTotal.Inc()
				s.logger.Warn("skipping corrupted history entry",
					zap.String("paragraph_id", paragraphID),
					zap.Int("version", row.VersionNumber),
					zap.Error(err))
				continue
			}
		}
		at := row.FinalizedAt
		entries = append(entries, &models.VersionListEntry{
			VersionNumber:   row.VersionNumber,
			Text:            text,
			FinalizedBy:     row.FinalizedBy,
			FinalizedAt:     &at,
			FinalizedReason: row.FinalizedReason,
			Archived:        archived,
		})
	}

	total := len(entries)
	start := (page - 1) * s.pageSize
	if start > total {
		start = total
	}
	end := start + s.pageSize
	if end > total {
		end = total
	}

	return &models.VersionListing{
		ParagraphID: paragraphID,
		Page:        page,
		PageSize:    s.pageSize,
		Total:       total,
		Entries:     entries[start:end],
	}, nil
}

// ResolveVersionText returns the stored text of one historical version,
// decompressing archived payloads. Used by rollback inside its transaction.
func (s *Store) ResolveVersionText(ctx context.Context, tx *storage.Tx, paragraphID string, versionNumber int) (string, error) {
	entry, err := tx.GetHistoryByVersion(ctx, paragraphID, versionNumber)
	if err != nil {
		return "", err
	}
	if entry.StorageClass == models.ClassArchived {
		return Decompress(entry.CompressedPayload)
	}
	return entry.Text, nil
}
