package e2e

import (
	"context"
	"testing"

	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/storage"
)

// Shared fixture identifiers. Every test starts from one document with a
// single published paragraph at version 1.
const (
	documentID   = "doc-handbook"
	paragraphID  = "para-intro"
	originalText = "the original published text"
)

var owner = identity{"own-1", "owner"}

func seed(t *testing.T, db *storage.Store) {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateDocument(ctx, &models.Document{
			ID:      documentID,
			Title:   "Handbook",
			OwnerID: owner.id,
			Settings: models.VersionControlSettings{
				Enabled:         true,
				ReviewThreshold: 0.5,
			},
		}); err != nil {
			return err
		}
		return tx.CreateParagraph(ctx, &models.Paragraph{
			ID:            paragraphID,
			DocumentID:    documentID,
			Text:          originalText,
			VersionNumber: 1,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}
