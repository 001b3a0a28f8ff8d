package analysis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const goodResponse = `{
	"candidates": [{
		"content": {"parts": [{"text": "✅ PRINT LOOKS GOOD: layers look uniform"}]},
		"finishReason": "STOP"
	}]
}`

// newTestClient points a client at a test server with fast timeouts so
// the retry path can run inside a unit test.
func newTestClient(url string, retry RetryPolicy) *Client {
	c := NewClient("test-key", url, "test prompt", retry)
	c.httpClient = &http.Client{Timeout: 100 * time.Millisecond}
	return c
}

func TestAnalyze_Success(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(goodResponse))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, RetryPolicy{})
	out := c.Analyze(context.Background(), []byte("jpeg"))

	if !out.Success {
		t.Fatalf("outcome not success: %v", out.Err)
	}
	if !strings.HasPrefix(out.RawText, "✅ PRINT LOOKS GOOD") {
		t.Errorf("raw text = %q", out.RawText)
	}
	if gotKey != "test-key" {
		t.Errorf("api key = %q", gotKey)
	}
}

func TestAnalyze_RequestShape(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Write([]byte(goodResponse))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, RetryPolicy{})
	if out := c.Analyze(context.Background(), []byte("jpeg")); !out.Success {
		t.Fatalf("analyze: %v", out.Err)
	}

	for _, want := range []string{`"test prompt"`, `"inline_data"`, `"image/jpeg"`, `"generationConfig"`, `"maxOutputTokens":1024`} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %s", want)
		}
	}
	// "jpeg" base64-encoded.
	if !strings.Contains(body, `"anBlZw=="`) {
		t.Error("request body missing base64 image payload")
	}
}

func TestAnalyze_RetriesTimeoutsThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			time.Sleep(300 * time.Millisecond) // beyond the client timeout
			return
		}
		w.Write([]byte(goodResponse))
	}))
	defer srv.Close()

	retry := RetryPolicy{MaxRetries: 2, Delay: 20 * time.Millisecond}
	c := newTestClient(srv.URL, retry)

	start := time.Now()
	out := c.Analyze(context.Background(), []byte("jpeg"))
	elapsed := time.Since(start)

	if !out.Success {
		t.Fatalf("outcome not success after retries: %v", out.Err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
	// Two retry delays must have elapsed.
	if elapsed < 2*retry.Delay {
		t.Errorf("elapsed = %s, want at least %s", elapsed, 2*retry.Delay)
	}
}

func TestAnalyze_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, RetryPolicy{MaxRetries: 2, Delay: 10 * time.Millisecond})
	out := c.Analyze(context.Background(), []byte("jpeg"))

	if out.Success {
		t.Fatal("expected failure")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", n)
	}
}

func TestAnalyze_Non200FailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, RetryPolicy{MaxRetries: 2, Delay: 10 * time.Millisecond})
	out := c.Analyze(context.Background(), []byte("jpeg"))

	if out.Success {
		t.Fatal("expected failure")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-200)", n)
	}
	if !strings.Contains(out.Err.Error(), "429") {
		t.Errorf("err = %v, want status code in message", out.Err)
	}
}

func TestAnalyze_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"no candidates", `{"candidates": []}`},
		{"no text parts", `{"candidates": [{"content": {"parts": []}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, RetryPolicy{MaxRetries: 2, Delay: 10 * time.Millisecond})
			out := c.Analyze(context.Background(), []byte("jpeg"))

			if out.Success {
				t.Fatal("expected failure")
			}
			if out.Err == nil {
				t.Fatal("expected descriptive error")
			}
		})
	}
}

func TestAnalyze_TruncatedResponseGetsNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "✅ PRINT LOOKS GOOD: layers"}]},
				"finishReason": "MAX_TOKENS"
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, RetryPolicy{})
	out := c.Analyze(context.Background(), []byte("jpeg"))

	if !out.Success {
		t.Fatalf("analyze: %v", out.Err)
	}
	if !strings.Contains(out.RawText, "truncated") {
		t.Errorf("raw text missing truncation note: %q", out.RawText)
	}
}

func TestAnalyze_EmptyImage(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0", RetryPolicy{})
	if out := c.Analyze(context.Background(), nil); out.Success {
		t.Fatal("expected failure for empty image")
	}
}
