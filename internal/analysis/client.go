package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// Default network behavior for the vision service call.
const (
	defaultRequestTimeout = 25 * time.Second
	defaultRetryDelay     = 5 * time.Second
)

// truncationNote is appended when the model stops at its token limit.
const truncationNote = "\n\n[Note: Response was truncated due to length limits]"

// RetryPolicy controls in-call retries for transient failures. Retries
// apply only to timeouts and network errors; a malformed or non-200
// response fails immediately.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy retries twice with a fixed 5 second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Delay: defaultRetryDelay}
}

// Outcome is the terminal result of one Analyze call. Exactly one of
// RawText (on success) or Err (on failure) is meaningful.
type Outcome struct {
	Success bool
	RawText string
	Err     error
}

// Client is a stateless wrapper around the Gemini generateContent API.
type Client struct {
	apiKey     string
	apiURL     string
	prompt     string
	retry      RetryPolicy
	httpClient *http.Client
}

// NewClient creates a vision-analysis client. An empty prompt falls back
// to DefaultPrompt.
func NewClient(apiKey, apiURL, prompt string, retry RetryPolicy) *Client {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Client{
		apiKey: apiKey,
		apiURL: apiURL,
		prompt: prompt,
		retry:  retry,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// ---- wire types (Gemini generateContent) ----

type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      candidateContent `json:"content"`
	FinishReason string           `json:"finishReason"`
}

type candidateContent struct {
	Parts []candidatePart `json:"parts"`
}

type candidatePart struct {
	Text string `json:"text"`
}

// Analyze submits one JPEG frame with the instruction prompt and returns
// the raw response text. Timeouts and transient network errors are retried
// synchronously per the retry policy; every other failure surfaces
// immediately as a failed Outcome. Analyze never panics and never returns
// a partial success.
func (c *Client) Analyze(ctx context.Context, imageBytes []byte) Outcome {
	if len(imageBytes) == 0 {
		return Outcome{Err: errors.New("analysis: empty image")}
	}

	body, err := c.buildRequest(imageBytes)
	if err != nil {
		return Outcome{Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("analysis: retry %d/%d after transient error: %v",
				attempt, c.retry.MaxRetries, lastErr)
			select {
			case <-time.After(c.retry.Delay):
			case <-ctx.Done():
				return Outcome{Err: ctx.Err()}
			}
		}

		text, retryable, err := c.doRequest(ctx, body)
		if err == nil {
			return Outcome{Success: true, RawText: text}
		}
		if !retryable {
			return Outcome{Err: err}
		}
		lastErr = err
	}

	return Outcome{Err: fmt.Errorf("analysis: giving up after %d retries: %w",
		c.retry.MaxRetries, lastErr)}
}

func (c *Client) buildRequest(imageBytes []byte) ([]byte, error) {
	req := generateRequest{
		Contents: []requestContent{{
			Parts: []requestPart{
				{Text: c.prompt},
				{InlineData: &inlineData{
					MIMEType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(imageBytes),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     0.3,
			MaxOutputTokens: 1024,
			TopP:            0.8,
			TopK:            40,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("analysis: marshal request: %w", err)
	}
	return body, nil
}

// doRequest performs one HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, body []byte) (string, bool, error) {
	url := fmt.Sprintf("%s?key=%s", c.apiURL, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("analysis: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", isTransient(err), fmt.Errorf("analysis: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("analysis: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("analysis: api returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("analysis: malformed response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", false, errors.New("analysis: response has no candidates")
	}

	cand := parsed.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", false, errors.New("analysis: response has no text parts")
	}
	if cand.FinishReason == "MAX_TOKENS" {
		text += truncationNote
	}

	return text, false, nil
}

// isTransient reports whether an HTTP client error is a timeout or other
// transient network condition worth a retry.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Connection refused, reset, DNS hiccups.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
