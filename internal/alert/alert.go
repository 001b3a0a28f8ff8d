// Package alert delivers cooldown-gated failure notifications to a
// Discord-style webhook.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/circuitbreakers/printwatch/internal/analysis"
)

const (
	// Discord rejects messages over 2000 characters.
	maxMessageLen = 2000
	// Raw analysis text embedded in the message is cut at this length.
	maxAnalysisLen = 500

	webhookUsername  = "3D Printer Monitor"
	webhookAvatarURL = "https://cdn-icons-png.flaticon.com/512/2103/2103633.png"

	requestTimeout = 15 * time.Second
)

// Dispatcher sends failure alerts to one webhook, at most once per
// cooldown window. The cooldown only advances on a delivered alert, so a
// failed delivery can be retried on the next unhealthy tick.
type Dispatcher struct {
	webhookURL string
	cooldown   time.Duration
	httpClient *http.Client

	// sendMu serializes MaybeNotify so the cooldown gate and the
	// lastSentAt update behave as one step under concurrent callers.
	sendMu sync.Mutex

	mu         sync.Mutex // guards lastSentAt
	lastSentAt time.Time

	now func() time.Time
}

// NewDispatcher creates a dispatcher for the given webhook URL. An empty
// URL disables alerting entirely.
func NewDispatcher(webhookURL string, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		httpClient: &http.Client{Timeout: requestTimeout},
		now:        time.Now,
	}
}

// MaybeNotify sends a failure alert unless the cooldown window is still
// open. It returns true only when the webhook accepted the message.
func (d *Dispatcher) MaybeNotify(status analysis.Status, confidence float64, rawText string, imageBytes []byte) bool {
	if d.webhookURL == "" {
		return false
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	d.mu.Lock()
	if !d.lastSentAt.IsZero() && d.now().Sub(d.lastSentAt) < d.cooldown {
		d.mu.Unlock()
		log.Printf("alert: cooldown active, skipping notification")
		return false
	}
	d.mu.Unlock()

	sentAt := d.now()
	message := buildMessage(status, confidence, rawText, len(imageBytes) > 0, sentAt)
	filename := fmt.Sprintf("print_failure_%s.jpg", sentAt.Format("2006-01-02_15-04-05"))

	if err := d.send(message, imageBytes, filename); err != nil {
		log.Printf("alert: delivery failed: %v", err)
		return false
	}

	d.mu.Lock()
	d.lastSentAt = sentAt
	d.mu.Unlock()

	log.Printf("alert: notification sent")
	return true
}

// ResetCooldown clears the cooldown so the next unhealthy tick alerts
// immediately.
func (d *Dispatcher) ResetCooldown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSentAt = time.Time{}
}

// LastSentAt returns when the last alert was delivered, or a zero time.
func (d *Dispatcher) LastSentAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSentAt
}

// buildMessage renders the alert text, truncating the embedded analysis
// at maxAnalysisLen and the whole message at maxMessageLen.
func buildMessage(status analysis.Status, confidence float64, rawText string, hasImage bool, at time.Time) string {
	analysisText := rawText
	if len([]rune(analysisText)) > maxAnalysisLen {
		analysisText = string([]rune(analysisText)[:maxAnalysisLen]) + "..."
	}

	imageLine := "No image available"
	if hasImage {
		imageLine = "Attached below"
	}

	var sb strings.Builder
	sb.WriteString("🚨 **3D PRINTER FAILURE ALERT** 🚨\n\n")
	fmt.Fprintf(&sb, "**Status:** %s\n", strings.ToUpper(string(status)))
	fmt.Fprintf(&sb, "**Confidence:** %.1f%%\n", confidence*100)
	fmt.Fprintf(&sb, "**Time:** %s\n\n", at.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "**AI Analysis:**\n%s\n\n", analysisText)
	fmt.Fprintf(&sb, "**Image:** %s\n\n", imageLine)
	sb.WriteString("**Action Required:** Check your printer immediately!")

	message := sb.String()
	if runes := []rune(message); len(runes) > maxMessageLen {
		message = string(runes[:maxMessageLen])
	}
	return message
}

type webhookPayload struct {
	Content   string `json:"content"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// send posts the message, as multipart with the image attached when one
// is available, and treats any 2xx as delivered.
func (d *Dispatcher) send(message string, imageBytes []byte, filename string) error {
	payload := webhookPayload{
		Content:   message,
		Username:  webhookUsername,
		AvatarURL: webhookAvatarURL,
	}

	var req *http.Request
	var err error
	if len(imageBytes) > 0 {
		req, err = d.buildMultipartRequest(payload, imageBytes, filename)
	} else {
		req, err = d.buildJSONRequest(payload)
	}
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("alert: webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (d *Dispatcher) buildJSONRequest(payload webhookPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("alert: marshal payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (d *Dispatcher) buildMultipartRequest(payload webhookPayload, imageBytes []byte, filename string) (*http.Request, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("alert: marshal payload: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, fmt.Errorf("alert: write payload field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("alert: create file part: %w", err)
	}
	if _, err := part.Write(imageBytes); err != nil {
		return nil, fmt.Errorf("alert: write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("alert: close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.webhookURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}
