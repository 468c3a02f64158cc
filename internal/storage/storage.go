// Package storage provides the SQLite persistence layer: a single
// authoritative transactional store for documents, paragraphs, suggestions,
// evaluations, the replacement queue, version history, and the audit log.
//
// All row operations live on Tx, which wraps either a live transaction
// (via Store.WithTx) or the bare connection for reads that can tolerate
// running outside a transaction (via Store.Read). Counter updates use atomic
// SQL increments rather than read-modify-write.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/naosu/internal/errdefs"
)

// Store owns the SQLite database.
type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx exposes row operations over a transaction or the bare connection.
type Tx struct {
	q querier
}

// Open opens or creates a SQLite database at dbPath and initializes the
// schema. Parent directories are created if they do not exist. Transactions
// take the write lock immediately so that two racing admin decisions
// serialize instead of deadlocking on lock upgrade.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// foreign_keys is per-connection, so it goes in the DSN rather than a
	// one-off PRAGMA that only reaches a single pooled connection.
	db, err := sql.Open("sqlite3", dbPath+"?_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		owner_id TEXT NOT NULL,
		vc_enabled INTEGER NOT NULL DEFAULT 1,
		review_threshold REAL NOT NULL DEFAULT 0.5,
		allow_admin_edit INTEGER NOT NULL DEFAULT 1,
		max_recent_versions INTEGER NOT NULL DEFAULT 4,
		max_total_versions INTEGER NOT NULL DEFAULT 50,
		reject_blocks_resubmission INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS paragraphs (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		ord INTEGER NOT NULL DEFAULT 0,
		version_number INTEGER NOT NULL DEFAULT 1,
		finalized_by TEXT NOT NULL DEFAULT '',
		finalized_at TIMESTAMP,
		finalized_reason TEXT NOT NULL DEFAULT '',
		consensus REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_paragraphs_document ON paragraphs(document_id, ord);

	CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		paragraph_id TEXT NOT NULL REFERENCES paragraphs(id) ON DELETE CASCADE,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		agree_count INTEGER NOT NULL DEFAULT 0,
		disagree_count INTEGER NOT NULL DEFAULT 0,
		counts_initialized INTEGER NOT NULL DEFAULT 1,
		consensus REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_suggestions_paragraph ON suggestions(paragraph_id);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		suggestion_id TEXT NOT NULL REFERENCES suggestions(id) ON DELETE CASCADE,
		evaluator_id TEXT NOT NULL,
		value INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_suggestion ON evaluations(suggestion_id);

	CREATE TABLE IF NOT EXISTS replacement_queue (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		paragraph_id TEXT NOT NULL REFERENCES paragraphs(id) ON DELETE CASCADE,
		suggestion_id TEXT NOT NULL,
		current_text TEXT NOT NULL,
		proposed_text TEXT NOT NULL,
		consensus REAL NOT NULL DEFAULT 0,
		consensus_at_creation REAL NOT NULL DEFAULT 0,
		evaluation_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		resolved_at TIMESTAMP,
		resolved_by TEXT NOT NULL DEFAULT '',
		admin_notes TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_one_pending
		ON replacement_queue(paragraph_id) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_queue_document ON replacement_queue(document_id, status);

	CREATE TABLE IF NOT EXISTS version_history (
		id TEXT PRIMARY KEY,
		paragraph_id TEXT NOT NULL REFERENCES paragraphs(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL,
		storage_class TEXT NOT NULL DEFAULT 'recent',
		text TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		finalized_by TEXT NOT NULL DEFAULT '',
		finalized_at TIMESTAMP,
		finalized_reason TEXT NOT NULL DEFAULT '',
		hide INTEGER NOT NULL DEFAULT 1,
		UNIQUE(paragraph_id, version_number)
	);

	CREATE INDEX IF NOT EXISTS idx_history_paragraph ON version_history(paragraph_id, version_number);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		paragraph_id TEXT NOT NULL,
		action TEXT NOT NULL,
		queue_id TEXT NOT NULL DEFAULT '',
		from_version INTEGER NOT NULL DEFAULT 0,
		to_version INTEGER NOT NULL DEFAULT 0,
		actor_id TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_paragraph ON audit_log(paragraph_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// WithTx runs fn inside one transaction. The transaction commits only if fn
// returns nil; any error rolls everything back, so a multi-document write is
// never half-applied.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errdefs.Databasef("begin transaction", err)
	}
	defer dbtx.Rollback()

	if err := fn(&Tx{q: dbtx}); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return errdefs.Databasef("commit transaction", err)
	}
	return nil
}

// Read returns a Tx over the bare connection for reads that may run outside
// a transaction (listings, status).
func (s *Store) Read() *Tx {
	return &Tx{q: s.db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
