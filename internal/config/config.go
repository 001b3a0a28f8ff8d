// Package config loads and checks the printwatch configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML configuration.
type Config struct {
	Watchdog WatchdogConfig `yaml:"watchdog"`
}

// WatchdogConfig holds everything the monitoring service consumes at its
// boundary: API credentials, alerting, cadence, retention, and local paths.
type WatchdogConfig struct {
	APIKey string `yaml:"api_key"`
	APIURL string `yaml:"api_url"`

	WebhookURL           string `yaml:"webhook_url"`
	AlertCooldownMinutes int    `yaml:"alert_cooldown_minutes"`

	IntervalSeconds       int `yaml:"interval_seconds"`
	MaxRetries            int `yaml:"max_retries"`
	MaxHistoryEntries     int `yaml:"max_history_entries"`
	CaptureTimeoutSeconds int `yaml:"capture_timeout_seconds"`

	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	CameraID   int    `yaml:"camera_id"`
}

// Load reads, parses, validates, and normalizes a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)

	return &cfg, nil
}
