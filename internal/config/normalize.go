package config

// Defaults applied by Normalize when a field is unset (zero).
const (
	DefaultIntervalSeconds      = 30
	MinIntervalSeconds          = 5
	MaxIntervalSeconds          = 60
	DefaultCooldownMinutes      = 10
	DefaultMaxRetries           = 2
	DefaultMaxHistoryEntries    = 100
	DefaultCaptureTimeoutSecs   = 10
	DefaultListenAddr           = ":8000"
	DefaultDataDir              = "printwatch-data"
	DefaultGeminiURL            = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"
)

// Normalize fills defaults and clamps values into their supported ranges.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	w := &cfg.Watchdog

	if w.APIURL == "" {
		w.APIURL = DefaultGeminiURL
	}

	if w.IntervalSeconds == 0 {
		w.IntervalSeconds = DefaultIntervalSeconds
	}
	if w.IntervalSeconds < MinIntervalSeconds {
		w.IntervalSeconds = MinIntervalSeconds
	}
	if w.IntervalSeconds > MaxIntervalSeconds {
		w.IntervalSeconds = MaxIntervalSeconds
	}

	if w.AlertCooldownMinutes == 0 {
		w.AlertCooldownMinutes = DefaultCooldownMinutes
	}
	if w.MaxRetries == 0 {
		w.MaxRetries = DefaultMaxRetries
	}
	if w.MaxHistoryEntries == 0 {
		w.MaxHistoryEntries = DefaultMaxHistoryEntries
	}
	if w.CaptureTimeoutSeconds == 0 {
		w.CaptureTimeoutSeconds = DefaultCaptureTimeoutSecs
	}
	if w.ListenAddr == "" {
		w.ListenAddr = DefaultListenAddr
	}
	if w.DataDir == "" {
		w.DataDir = DefaultDataDir
	}
}
