package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configurations that cannot possibly run.
// It never mutates; clamping and defaults belong to Normalize.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	w := &cfg.Watchdog

	if strings.TrimSpace(w.APIKey) == "" {
		return errors.New("config: watchdog.api_key is required")
	}

	if w.WebhookURL != "" && !strings.HasPrefix(w.WebhookURL, "http") {
		return fmt.Errorf("config: watchdog.webhook_url must be an http(s) URL, got %q", w.WebhookURL)
	}

	if w.IntervalSeconds < 0 {
		return fmt.Errorf("config: watchdog.interval_seconds must not be negative, got %d", w.IntervalSeconds)
	}
	if w.AlertCooldownMinutes < 0 {
		return fmt.Errorf("config: watchdog.alert_cooldown_minutes must not be negative, got %d", w.AlertCooldownMinutes)
	}
	if w.MaxRetries < 0 {
		return fmt.Errorf("config: watchdog.max_retries must not be negative, got %d", w.MaxRetries)
	}
	if w.MaxHistoryEntries < 0 {
		return fmt.Errorf("config: watchdog.max_history_entries must not be negative, got %d", w.MaxHistoryEntries)
	}
	if w.CaptureTimeoutSeconds < 0 {
		return fmt.Errorf("config: watchdog.capture_timeout_seconds must not be negative, got %d", w.CaptureTimeoutSeconds)
	}
	if w.CameraID < 0 {
		return fmt.Errorf("config: watchdog.camera_id must not be negative, got %d", w.CameraID)
	}

	return nil
}
