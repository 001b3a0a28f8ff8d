package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/circuitbreakers/printwatch/internal/analysis"
)

// ErrNotFound is returned by Get when no entry has the requested ID.
var ErrNotFound = errors.New("history: entry not found")

// Entry is one persisted analysis with its image.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	ImageFile string          `json:"image_file"`
	Result    analysis.Result `json:"result"`
	Success   bool            `json:"success"`
	SizeBytes int64           `json:"size_bytes"`
}

// newEntryID derives a sortable, time-based ID with a short random suffix
// so two appends in the same millisecond never collide.
func newEntryID(at time.Time) string {
	return fmt.Sprintf("%s-%s", at.UTC().Format("20060102-150405.000"), uuid.New().String()[:8])
}

// Append writes the image to disk, records the entry, and evicts the
// oldest entries (record and image file) beyond the store's bound.
func (s *Store) Append(imageBytes []byte, result analysis.Result) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		ID:        newEntryID(result.Timestamp),
		Timestamp: result.Timestamp,
		Result:    result,
		Success:   true,
		SizeBytes: int64(len(imageBytes)),
	}
	entry.ImageFile = entry.ID + ".jpg"

	imagePath := filepath.Join(s.imagesDir, entry.ImageFile)
	if err := os.WriteFile(imagePath, imageBytes, 0644); err != nil {
		return nil, fmt.Errorf("history: write image: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO analyses (id, timestamp, image_file, raw_text, status, confidence, healthy, success, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.ImageFile,
		entry.Result.RawText,
		string(entry.Result.Status),
		entry.Result.Confidence,
		entry.Result.Healthy,
		boolToInt(entry.Success),
		entry.SizeBytes,
	)
	if err != nil {
		// Keep the invariant: no record, no file.
		os.Remove(imagePath)
		return nil, fmt.Errorf("history: insert entry: %w", err)
	}

	if err := s.evict(); err != nil {
		log.Printf("history: eviction failed: %v", err)
	}

	return entry, nil
}

// evict removes oldest-first until the entry count is within bound.
// Caller holds s.mu.
func (s *Store) evict() error {
	for {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&count); err != nil {
			return err
		}
		if count <= s.maxEntries {
			return nil
		}

		var seq int64
		var imageFile string
		err := s.db.QueryRow(
			`SELECT seq, image_file FROM analyses ORDER BY seq ASC LIMIT 1`,
		).Scan(&seq, &imageFile)
		if err != nil {
			return err
		}

		if _, err := s.db.Exec(`DELETE FROM analyses WHERE seq = ?`, seq); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(s.imagesDir, imageFile)); err != nil && !os.IsNotExist(err) {
			log.Printf("history: remove evicted image %s: %v", imageFile, err)
		}
	}
}

// List returns entries newest-first. A non-positive limit returns all.
func (s *Store) List(limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, timestamp, image_file, raw_text, status, confidence, healthy, success, size_bytes
		FROM analyses ORDER BY seq DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns the entry with the given ID, or ErrNotFound.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, timestamp, image_file, raw_text, status, confidence, healthy, success, size_bytes
		 FROM analyses WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// ImagePath returns the on-disk path of an entry's image.
func (s *Store) ImagePath(entry *Entry) string {
	return filepath.Join(s.imagesDir, entry.ImageFile)
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&count)
	return count, err
}

// Clear removes every image file and empties the list.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT image_file FROM analyses`)
	if err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			rows.Close()
			return err
		}
		files = append(files, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range files {
		if err := os.Remove(filepath.Join(s.imagesDir, f)); err != nil && !os.IsNotExist(err) {
			log.Printf("history: remove image %s: %v", f, err)
		}
	}

	if _, err := s.db.Exec(`DELETE FROM analyses`); err != nil {
		return fmt.Errorf("history: clear records: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var ts, status string
	var success int
	err := row.Scan(&e.ID, &ts, &e.ImageFile, &e.Result.RawText, &status,
		&e.Result.Confidence, &e.Result.Healthy, &success, &e.SizeBytes)
	if err != nil {
		return nil, err
	}

	e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("history: parse timestamp %q: %w", ts, err)
	}
	e.Result.Timestamp = e.Timestamp
	e.Result.Status = analysis.Status(status)
	e.Success = success != 0
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
