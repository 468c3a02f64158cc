package storage

import (
	"context"

	"github.com/hyperjump/naosu/internal/errdefs"
)

// Stats summarizes store contents for the status endpoint.
type Stats struct {
	Documents    int64 `json:"documents"`
	Paragraphs   int64 `json:"paragraphs"`
	Suggestions  int64 `json:"suggestions"`
	Evaluations  int64 `json:"evaluations"`
	PendingItems int64 `json:"pending_items"`
	HistoryRows  int64 `json:"history_rows"`
}

// GetStats counts rows across the core tables.
func (t *Tx) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM documents`, &s.Documents},
		{`SELECT COUNT(*) FROM paragraphs`, &s.Paragraphs},
		{`SELECT COUNT(*) FROM suggestions`, &s.Suggestions},
		{`SELECT COUNT(*) FROM evaluations`, &s.Evaluations},
		{`SELECT COUNT(*) FROM replacement_queue WHERE status = 'pending'`, &s.PendingItems},
		{`SELECT COUNT(*) FROM version_history`, &s.HistoryRows},
	}
	for _, c := range counts {
		if err := t.q.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, errdefs.Databasef("count rows", err)
		}
	}
	return &s, nil
}
