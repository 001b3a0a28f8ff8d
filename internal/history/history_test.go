package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/circuitbreakers/printwatch/internal/analysis"
)

func testResult(raw string) analysis.Result {
	return analysis.NewResult(raw, time.Now())
}

func mustAppend(t *testing.T, s *Store, raw string) *Entry {
	t.Helper()
	entry, err := s.Append([]byte("jpeg-"+raw), testResult(raw))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return entry
}

func TestNew_CreatesLayout(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Error("history.db should exist")
	}
	if info, err := os.Stat(filepath.Join(dir, "images")); err != nil || !info.IsDir() {
		t.Error("images directory should exist")
	}
}

func TestNew_RejectsNonPositiveBound(t *testing.T) {
	if _, err := New(t.TempDir(), 0); err == nil {
		t.Fatal("expected error for maxEntries = 0")
	}
}

func TestAppend_WritesRecordAndImage(t *testing.T) {
	s, err := New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	entry := mustAppend(t, s, "✅ PRINT LOOKS GOOD: layers look uniform")

	if entry.ID == "" {
		t.Error("entry should have an ID")
	}
	if entry.SizeBytes == 0 {
		t.Error("entry should record its image size")
	}

	data, err := os.ReadFile(s.ImagePath(entry))
	if err != nil {
		t.Fatalf("image file: %v", err)
	}
	if len(data) == 0 {
		t.Error("image file should not be empty")
	}

	got, err := s.Get(entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Result.Status != analysis.StatusHealthy {
		t.Errorf("status = %s", got.Result.Status)
	}
	if got.Result.Healthy != 1 {
		t.Errorf("healthy = %d", got.Result.Healthy)
	}
	if !got.Success {
		t.Error("entry should be marked successful")
	}
}

func TestAppend_UniqueIDs(t *testing.T) {
	s, err := New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		entry := mustAppend(t, s, fmt.Sprintf("✅ looking good, pass number %d of the series", i))
		if seen[entry.ID] {
			t.Fatalf("duplicate id %s", entry.ID)
		}
		seen[entry.ID] = true
	}
}

func TestAppend_EvictsOldestBeyondBound(t *testing.T) {
	s, err := New(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	oldest := mustAppend(t, s, "✅ first analysis of the session looks entirely fine")
	for i := 0; i < 3; i++ {
		mustAppend(t, s, fmt.Sprintf("✅ subsequent analysis number %d also looks fine", i))
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	if _, err := s.Get(oldest.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest entry should be evicted, got err = %v", err)
	}
	if _, err := os.Stat(s.ImagePath(oldest)); !os.IsNotExist(err) {
		t.Error("evicted entry's image file should be deleted")
	}

	// Every remaining record still has its image file.
	entries, err := s.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, e := range entries {
		if _, err := os.Stat(s.ImagePath(e)); err != nil {
			t.Errorf("entry %s missing image file: %v", e.ID, err)
		}
	}
}

func TestList_NewestFirstWithLimit(t *testing.T) {
	s, err := New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	var last *Entry
	for i := 0; i < 4; i++ {
		last = mustAppend(t, s, fmt.Sprintf("✅ analysis number %d in order looks fine", i))
	}

	entries, err := s.List(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].ID != last.ID {
		t.Error("list should be newest-first")
	}
}

func TestClear_RemovesRecordsAndFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		mustAppend(t, s, fmt.Sprintf("✅ analysis number %d before the clear call", i))
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}

	files, err := os.ReadDir(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatalf("read images dir: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("images dir has %d files, want 0", len(files))
	}
}

func TestAppend_ConcurrentAppends(t *testing.T) {
	s, err := New(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append([]byte("jpeg"), testResult(fmt.Sprintf("✅ concurrent append number %d looks fine", i))); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 10 {
		t.Errorf("count = %d, want 10", count)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, err := New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
