package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend is the structured durable storage tier.
//
// All entries live in one blobs table keyed by string. Preferred over the
// file backend because SQLite handles many small writes and large binary
// values well, and gives us a single file to back up.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens (or creates) the database in dataDir.
func NewSQLiteBackend(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, "docforest.db")

	// WAL keeps readers unblocked during snapshot rewrites.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			timestamp INTEGER NOT NULL,
			size INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create blobs table: %w", err)
	}
	return &SQLiteBackend{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteBackend) Path() string {
	return s.path
}

// Get returns the stored entry, or (nil, nil) when absent.
func (s *SQLiteBackend) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT data, timestamp, size FROM blobs WHERE id = ?", key)
	var e Entry
	var ts int64
	if err := row.Scan(&e.Data, &ts, &e.Size); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entry %q: %w", key, err)
	}
	e.Key = key
	e.Timestamp = time.UnixMilli(ts)
	return &e, nil
}

// Put upserts the value with its size and a write timestamp.
func (s *SQLiteBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, data, timestamp, size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			size = excluded.size
	`, key, value, time.Now().UnixMilli(), int64(len(value)))
	if err != nil {
		return fmt.Errorf("failed to write entry %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry. Deleting an absent key is not an error.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", key); err != nil {
		return fmt.Errorf("failed to delete entry %q: %w", key, err)
	}
	return nil
}

// List returns metadata for all entries, sorted by key.
func (s *SQLiteBackend) List(ctx context.Context) ([]EntryInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, size, timestamp FROM blobs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var infos []EntryInfo
	for rows.Next() {
		var info EntryInfo
		var ts int64
		if err := rows.Scan(&info.Key, &info.Size, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		info.Timestamp = time.UnixMilli(ts)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return infos, nil
}

// Name returns the tier name.
func (s *SQLiteBackend) Name() string {
	return "sqlite"
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
