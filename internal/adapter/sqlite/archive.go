// Package sqlite persists the download archive: the ledger of item
// identifiers that have already completed, consulted before scheduling and
// appended to after a confirmed success.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS archive (
    id           TEXT PRIMARY KEY,
    completed_at DATETIME NOT NULL
);
`

// ArchiveStore implements domain.Archive using SQLite. Mutations are
// serialized through the single write connection, so concurrent worker
// slots need no coordination of their own.
type ArchiveStore struct {
	db *sql.DB
}

// New opens (creating if needed) the archive database at dbPath.
func New(dbPath string) (*ArchiveStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &ArchiveStore{db: db}, nil
}

// Close closes the database connection.
func (s *ArchiveStore) Close() error {
	return s.db.Close()
}

// Has reports whether the id was previously recorded as completed.
func (s *ArchiveStore) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM archive WHERE id = ?`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record appends a completion record for the id. Recording an id that is
// already present is a no-op; records are never revised.
func (s *ArchiveStore) Record(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archive (id, completed_at) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, time.Now(),
	)
	return err
}

// Count returns the number of archived ids.
func (s *ArchiveStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive`).Scan(&n)
	return n, err
}
