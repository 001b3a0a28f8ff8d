package capture

import (
	"errors"
	"sync"
	"time"
)

// MockBackend is a scriptable backend for testing the device's fallback
// and locking behavior without camera hardware.
type MockBackend struct {
	kind BackendKind

	mu           sync.Mutex
	openErr      error
	captureErr   error
	frame        []byte
	captureDelay time.Duration
	failCaptures int // fail this many captures before succeeding

	opens    int
	closes   int
	captures int
}

// NewMockBackend creates a mock that returns the given frame on capture.
func NewMockBackend(kind BackendKind, frame []byte) *MockBackend {
	return &MockBackend{kind: kind, frame: frame}
}

func (m *MockBackend) Kind() BackendKind { return m.kind }

func (m *MockBackend) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return m.openErr
}

func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *MockBackend) Capture() ([]byte, error) {
	m.mu.Lock()
	delay := m.captureDelay
	m.captures++
	if m.failCaptures > 0 {
		m.failCaptures--
		m.mu.Unlock()
		return nil, errors.New("mock: capture failed")
	}
	err := m.captureErr
	frame := m.frame
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// SetOpenErr makes Open fail.
func (m *MockBackend) SetOpenErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetCaptureErr makes every Capture fail.
func (m *MockBackend) SetCaptureErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureErr = err
}

// FailCaptures makes the next n captures fail before recovering.
func (m *MockBackend) FailCaptures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCaptures = n
}

// SetCaptureDelay makes each capture take the given duration.
func (m *MockBackend) SetCaptureDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureDelay = d
}

// Captures returns how many captures were attempted.
func (m *MockBackend) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// Closes returns how many times Close was called.
func (m *MockBackend) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// mockHighRes wraps a MockBackend with a dedicated high-res routine.
type mockHighRes struct {
	*MockBackend
	frame []byte
}

// NewMockHighResBackend creates a mock that serves distinct stream and
// high-res frames.
func NewMockHighResBackend(kind BackendKind, stream, highRes []byte) Backend {
	return &mockHighRes{MockBackend: NewMockBackend(kind, stream), frame: highRes}
}

func (m *mockHighRes) CaptureHighRes() ([]byte, error) {
	if _, err := m.Capture(); err != nil {
		return nil, err
	}
	return m.frame, nil
}
