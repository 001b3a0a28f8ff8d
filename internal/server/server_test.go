package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/circuitbreakers/printwatch/internal/monitor"
)

type fakeMonitor struct {
	status     monitor.Status
	calls      []string
	analyzeErr error
}

func (m *fakeMonitor) Start()  { m.calls = append(m.calls, "start"); m.status.Active = true }
func (m *fakeMonitor) Stop()   { m.calls = append(m.calls, "stop"); m.status.Active = false }
func (m *fakeMonitor) Pause()  { m.calls = append(m.calls, "pause"); m.status.Paused = true }
func (m *fakeMonitor) Resume() { m.calls = append(m.calls, "resume"); m.status.Paused = false }

func (m *fakeMonitor) SetInterval(seconds int) int {
	m.calls = append(m.calls, "interval")
	if seconds > 60 {
		seconds = 60
	}
	if seconds < 5 {
		seconds = 5
	}
	m.status.IntervalSeconds = seconds
	return seconds
}

func (m *fakeMonitor) Status() monitor.Status { return m.status }

func (m *fakeMonitor) AnalyzeNow(ctx context.Context) error {
	m.calls = append(m.calls, "analyze")
	return m.analyzeErr
}

type fakeResetter struct {
	resets int
}

func (r *fakeResetter) ResetCooldown() { r.resets++ }

func newTestServer(t *testing.T, m *fakeMonitor, alerter CooldownResetter) *Server {
	t.Helper()
	s := New(Config{Monitor: m, Alerter: alerter})
	t.Cleanup(s.Close)
	return s
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_Status(t *testing.T) {
	m := &fakeMonitor{status: monitor.Status{
		Active:          true,
		Phase:           monitor.PhaseWaiting,
		LastAnalysis:    "✅ print looks fine",
		Healthy:         1,
		IntervalSeconds: 30,
	}}
	s := newTestServer(t, m, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got monitor.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got.Active || got.Phase != monitor.PhaseWaiting || got.LastAnalysis != "✅ print looks fine" {
		t.Errorf("unexpected snapshot %+v", got)
	}
}

func TestServer_MonitorControls(t *testing.T) {
	m := &fakeMonitor{}
	s := newTestServer(t, m, nil)

	for _, action := range []string{"start", "pause", "resume", "stop"} {
		req := httptest.NewRequest(http.MethodPost, "/api/monitor/"+action, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", action, http.StatusOK, rec.Code)
		}
	}
	want := []string{"start", "pause", "resume", "stop"}
	if len(m.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", m.calls, want)
	}
	for i, call := range want {
		if m.calls[i] != call {
			t.Errorf("call %d = %s, want %s", i, m.calls[i], call)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/start", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on control: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestServer_Interval(t *testing.T) {
	m := &fakeMonitor{}
	s := newTestServer(t, m, nil)

	body := bytes.NewBufferString(`{"interval_seconds": 120}`)
	req := httptest.NewRequest(http.MethodPost, "/api/monitor/interval", body)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp intervalResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.IntervalSeconds != 60 {
		t.Errorf("expected clamped interval 60, got %d", resp.IntervalSeconds)
	}
}

func TestServer_IntervalRejectsBadBody(t *testing.T) {
	s := newTestServer(t, &fakeMonitor{}, nil)

	for _, body := range []string{`not json`, `{"interval_seconds": 0}`, `{"interval_seconds": -5}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/monitor/interval", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestServer_Analyze(t *testing.T) {
	m := &fakeMonitor{status: monitor.Status{LastAnalysis: "✅ print looks fine"}}
	s := newTestServer(t, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if m.calls[len(m.calls)-1] != "analyze" {
		t.Errorf("analyze not triggered, calls = %v", m.calls)
	}
}

func TestServer_AnalyzeCameraUnavailable(t *testing.T) {
	m := &fakeMonitor{analyzeErr: errors.New("camera unavailable: no device")}
	s := newTestServer(t, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestServer_AlertsReset(t *testing.T) {
	alerter := &fakeResetter{}
	s := newTestServer(t, &fakeMonitor{}, alerter)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/reset", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if alerter.resets != 1 {
		t.Errorf("expected 1 cooldown reset, got %d", alerter.resets)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
