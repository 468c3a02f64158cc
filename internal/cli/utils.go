// Package cli provides CLI utilities for Naosu.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteQueueItems writes replacement queue items to w in the given format.
func WriteQueueItems(w io.Writer, items []*models.PendingReplacement, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%s] %s\n", item.Status, item.ID)
		fmt.Fprintf(w, "Paragraph: %s | Consensus: %.4f (at creation: %.4f) | Evaluations: %d\n",
			item.ParagraphID, item.Consensus, item.ConsensusAtCreation, item.EvaluationCount)
		fmt.Fprintf(w, "Current:  %s\n", utils.Truncate(item.CurrentText, 120))
		fmt.Fprintf(w, "Proposed: %s\n", utils.Truncate(item.ProposedText, 120))
		if item.Status.Terminal() {
			fmt.Fprintf(w, "Resolved by %s", item.ResolvedBy)
			if item.ResolvedAt != nil {
				fmt.Fprintf(w, " at %s", item.ResolvedAt.Format("2006-01-02 15:04:05"))
			}
			if item.AdminNotes != "" {
				fmt.Fprintf(w, ": %s", utils.TruncateWords(item.AdminNotes, 20))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteVersionListing writes one page of a paragraph's version history.
func WriteVersionListing(w io.Writer, listing *models.VersionListing, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	}
	fmt.Fprintf(w, "\nParagraph %s: %d version(s), page %d (page size %d)\n\n",
		listing.ParagraphID, listing.Total, listing.Page, listing.PageSize)
	for _, entry := range listing.Entries {
		marker := " "
		if entry.Current {
			marker = "*"
		}
		class := ""
		if entry.Archived {
			class = " [archived]"
		}
		fmt.Fprintf(w, "%s v%d%s", marker, entry.VersionNumber, class)
		if entry.FinalizedReason != "" {
			fmt.Fprintf(w, " (%s", entry.FinalizedReason)
			if entry.FinalizedBy != "" {
				fmt.Fprintf(w, " by %s", entry.FinalizedBy)
			}
			fmt.Fprint(w, ")")
		}
		fmt.Fprintf(w, "\n  %s\n", utils.Truncate(entry.Text, 160))
	}
	return nil
}
