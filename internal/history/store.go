// Package history persists a bounded, append-only log of past analyses
// with their captured images.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store keeps analysis records in a SQLite list file with a sibling
// directory of image files named by record ID. The record list and the
// image directory always correspond one to one; eviction and Clear remove
// both sides together. All mutations are serialized by an internal lock.
type Store struct {
	db         *sql.DB
	imagesDir  string
	maxEntries int
	mu         sync.Mutex
}

// New opens (or creates) the history store under dataDir. The record list
// lives in dataDir/history.db, images in dataDir/images. maxEntries bounds
// the log; older entries are evicted oldest-first.
func New(dataDir string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("history: maxEntries must be positive, got %d", maxEntries)
	}

	imagesDir := filepath.Join(dataDir, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, fmt.Errorf("history: create images dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	s := &Store{
		db:         db,
		imagesDir:  imagesDir,
		maxEntries: maxEntries,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Analyses table - the ordered history list. seq preserves
		// append order for oldest-first eviction.
		`CREATE TABLE IF NOT EXISTS analyses (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			timestamp TEXT NOT NULL,
			image_file TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			healthy INTEGER NOT NULL,
			success INTEGER NOT NULL DEFAULT 1,
			size_bytes INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_analyses_id ON analyses(id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
