package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/circuitbreakers/printwatch/internal/monitor"
)

func TestEventsHandler_BroadcastsSnapshots(t *testing.T) {
	m := &fakeMonitor{status: monitor.Status{
		Active:          true,
		Phase:           monitor.PhaseWaiting,
		IntervalSeconds: 30,
	}}
	h := NewEventsHandler(m)
	defer h.Close()

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	var st monitor.Status
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("no snapshot received: %v", err)
	}
	if !st.Active || st.Phase != monitor.PhaseWaiting {
		t.Errorf("unexpected snapshot %+v", st)
	}
}

func TestEventsHandler_CloseDisconnectsClients(t *testing.T) {
	m := &fakeMonitor{}
	h := NewEventsHandler(m)

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	h.Close()
	h.Close() // idempotent

	// The server side dropped the connection, so reads fail quickly.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st monitor.Status
	for i := 0; i < 10; i++ {
		if err := conn.ReadJSON(&st); err != nil {
			return
		}
	}
	t.Error("connection still open after handler close")
}

func TestEventsHandler_RejectsUpgradeAfterClose(t *testing.T) {
	h := NewEventsHandler(&fakeMonitor{})
	h.Close()

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail after close")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status %d response", http.StatusServiceUnavailable)
	}
}
