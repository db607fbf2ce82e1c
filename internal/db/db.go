// Package db owns the SQLite database that backs job locks and the
// server-side ingestion ledger.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with corpusd-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return d, nil
}

// OpenMemory creates an in-memory database, used by tests.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// A single connection keeps every query on the same in-memory database
	// and serializes writers the way the on-disk WAL database does.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS job_locks (
    job TEXT PRIMARY KEY,
    holder TEXT NOT NULL DEFAULT '',
    expires_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ingested_files (
    account TEXT NOT NULL,
    path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    content_type TEXT NOT NULL,
    indexed_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY(account, path)
);

CREATE INDEX IF NOT EXISTS idx_ingested_type ON ingested_files(account, content_type);
`

// IngestedHash returns the stored content hash for (account, path), or ""
// if the path was never ingested.
func (d *DB) IngestedHash(ctx context.Context, account, path string) (string, error) {
	var hash string
	err := d.QueryRowContext(ctx,
		`SELECT content_hash FROM ingested_files WHERE account = ? AND path = ?`,
		account, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// RecordIngested upserts the ingestion ledger row for (account, path).
func (d *DB) RecordIngested(ctx context.Context, account, path, hash, contentType string) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO ingested_files (account, path, content_hash, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account, path) DO UPDATE SET
			content_hash = excluded.content_hash,
			content_type = excluded.content_type,
			indexed_at = excluded.indexed_at`,
		account, path, hash, contentType, time.Now().UTC())
	return err
}

// ForgetIngested removes the ledger row for a deleted path.
func (d *DB) ForgetIngested(ctx context.Context, account, path string) error {
	_, err := d.ExecContext(ctx,
		`DELETE FROM ingested_files WHERE account = ? AND path = ?`, account, path)
	return err
}

// ForgetIngestedType removes all ledger rows of one content type for an
// account, matching an index purge.
func (d *DB) ForgetIngestedType(ctx context.Context, account, contentType string) error {
	_, err := d.ExecContext(ctx,
		`DELETE FROM ingested_files WHERE account = ? AND content_type = ?`, account, contentType)
	return err
}

// IngestedPaths lists every ledger path for an account.
func (d *DB) IngestedPaths(ctx context.Context, account string) ([]string, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT path FROM ingested_files WHERE account = ? ORDER BY path`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Accounts lists every account that has ledger rows.
func (d *DB) Accounts(ctx context.Context) ([]string, error) {
	rows, err := d.QueryContext(ctx, `SELECT DISTINCT account FROM ingested_files ORDER BY account`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
