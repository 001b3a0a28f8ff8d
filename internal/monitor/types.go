// Package monitor runs the supervised capture-analyze-alert loop and
// publishes its state as a read-only snapshot.
package monitor

import (
	"context"
	"time"

	"github.com/circuitbreakers/printwatch/internal/analysis"
	"github.com/circuitbreakers/printwatch/internal/history"
)

// Phase is the scheduler's current step within one monitoring cycle,
// exposed for observability.
type Phase string

const (
	PhaseWaitingForCamera Phase = "waiting_for_camera"
	PhaseCapturing        Phase = "capturing"
	PhaseAnalyzing        Phase = "analyzing"
	PhaseProcessing       Phase = "processing"
	PhaseWaiting          Phase = "waiting"
	PhasePaused           Phase = "paused"
	PhaseError            Phase = "error"
)

// Status is the published snapshot handed to external callers by value.
// LastAnalysis and its derived fields always reflect the most recent
// successful analysis; transient failures never overwrite them.
type Status struct {
	Active bool  `json:"monitoring_active"`
	Paused bool  `json:"monitoring_paused"`
	Phase  Phase `json:"process_phase"`

	LastAnalysis string          `json:"last_analysis"`
	AnalysisAt   time.Time       `json:"analysis_at"`
	StatusEnum   analysis.Status `json:"status"`
	Confidence   float64         `json:"confidence"`
	Healthy      int             `json:"healthy"`

	CountdownSeconds   int     `json:"countdown_seconds"`
	IntervalSeconds    int     `json:"interval_seconds"`
	TotalAnalyses      int     `json:"total_analyses"`
	SuccessfulAnalyses int     `json:"successful_analyses"`
	SuccessRate        float64 `json:"success_rate"`

	FailureDetected bool      `json:"failure_detected"`
	LastFailureAt   time.Time `json:"last_failure_at,omitzero"`
}

// Camera is the capture surface the scheduler drives.
type Camera interface {
	Initialize() error
	Ready() bool
	CaptureHighResFrame(ctx context.Context) ([]byte, error)
	Release()
}

// Analyzer submits one frame to the vision service.
type Analyzer interface {
	Analyze(ctx context.Context, imageBytes []byte) analysis.Outcome
}

// Recorder persists one successful analysis with its image.
type Recorder interface {
	Append(imageBytes []byte, result analysis.Result) (*history.Entry, error)
}

// Notifier dispatches a cooldown-gated alert for an unhealthy analysis.
type Notifier interface {
	MaybeNotify(status analysis.Status, confidence float64, rawText string, imageBytes []byte) bool
}
