// Package archivestore records downloaded dataset archives in SQLite.
package archivestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is the manifest entry for one locally cached dataset archive.
type Archive struct {
	DatasetID string    `json:"dataset_id"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store provides persistent storage for the archive manifest.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the manifest database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archives (
		dataset_id TEXT PRIMARY KEY,
		url TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		fetched_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces the entry for a.DatasetID.
func (s *Store) Put(a *Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO archives (dataset_id, url, path, size, checksum, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			url = excluded.url,
			path = excluded.path,
			size = excluded.size,
			checksum = excluded.checksum,
			fetched_at = excluded.fetched_at
	`,
		a.DatasetID,
		a.URL,
		a.Path,
		a.Size,
		a.Checksum,
		a.FetchedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// Get returns the entry for datasetID, or nil if there is none.
func (s *Store) Get(datasetID string) (*Archive, error) {
	row := s.db.QueryRow(`
		SELECT dataset_id, url, path, size, checksum, fetched_at
		FROM archives WHERE dataset_id = ?
	`, datasetID)

	a, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// List returns all entries ordered by dataset ID.
func (s *Store) List() ([]*Archive, error) {
	rows, err := s.db.Query(`
		SELECT dataset_id, url, path, size, checksum, fetched_at
		FROM archives ORDER BY dataset_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes the entry for datasetID. The archive file is left alone.
func (s *Store) Delete(datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM archives WHERE dataset_id = ?", datasetID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArchive(sc scanner) (*Archive, error) {
	var a Archive
	var fetchedAt string
	if err := sc.Scan(&a.DatasetID, &a.URL, &a.Path, &a.Size, &a.Checksum, &fetchedAt); err != nil {
		return nil, err
	}
	a.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	return &a, nil
}
