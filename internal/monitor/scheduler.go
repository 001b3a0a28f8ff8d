package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/circuitbreakers/printwatch/internal/analysis"
	"github.com/circuitbreakers/printwatch/internal/config"
)

const (
	heartbeatInterval = time.Second
	cameraRetryDelay  = 10 * time.Second
	errorBackoff      = 15 * time.Second
)

// Scheduler owns the monitoring loop. A 1s heartbeat drives all state
// transitions so pause, interval changes, and shutdown take effect
// within one tick.
type Scheduler struct {
	camera   Camera
	analyzer Analyzer
	recorder Recorder
	notifier Notifier

	mu           sync.RWMutex
	status       Status
	interval     time.Duration
	nextAnalysis time.Time
	nextCamRetry time.Time
	cancel       context.CancelFunc
	done         chan struct{}

	// cycleMu serializes analysis cycles so a manual trigger never
	// overlaps a scheduled one on the shared camera.
	cycleMu sync.Mutex

	now func() time.Time
}

func NewScheduler(camera Camera, analyzer Analyzer, recorder Recorder, notifier Notifier, intervalSeconds int) *Scheduler {
	s := &Scheduler{
		camera:   camera,
		analyzer: analyzer,
		recorder: recorder,
		notifier: notifier,
		now:      time.Now,
	}
	s.interval = time.Duration(clampInterval(intervalSeconds)) * time.Second
	s.status.Phase = PhaseWaitingForCamera
	s.status.IntervalSeconds = int(s.interval / time.Second)
	return s
}

func clampInterval(seconds int) int {
	if seconds < config.MinIntervalSeconds {
		return config.MinIntervalSeconds
	}
	if seconds > config.MaxIntervalSeconds {
		return config.MaxIntervalSeconds
	}
	return seconds
}

// Start launches the heartbeat loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.status.Active = true
	s.nextAnalysis = s.now()
	s.nextCamRetry = s.now()
	log.Printf("monitor: started, interval %s", s.interval)
	go s.run(ctx, s.done)
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.status.Active = false
	s.status.Phase = PhaseWaitingForCamera
	s.mu.Unlock()
	log.Printf("monitor: stopped")
}

// Pause suspends analysis cycles without tearing down the loop or the
// camera. The countdown freezes until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Paused {
		return
	}
	s.status.Paused = true
	s.status.Phase = PhasePaused
	log.Printf("monitor: paused")
}

// Resume lifts a pause and schedules the next cycle a full interval out.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Paused {
		return
	}
	s.status.Paused = false
	s.status.Phase = PhaseWaiting
	s.nextAnalysis = s.now().Add(s.interval)
	log.Printf("monitor: resumed")
}

// SetInterval changes the cycle period, clamped to the allowed range,
// and reschedules the next cycle from now. It returns the applied value.
func (s *Scheduler) SetInterval(seconds int) int {
	applied := clampInterval(seconds)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = time.Duration(applied) * time.Second
	s.status.IntervalSeconds = applied
	s.nextAnalysis = s.now().Add(s.interval)
	log.Printf("monitor: interval set to %ds", applied)
	return applied
}

// Status returns a copy of the current snapshot with the countdown
// computed against the wall clock.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.Active && !st.Paused {
		remaining := int(s.nextAnalysis.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		st.CountdownSeconds = remaining
	}
	return st
}

// AnalyzeNow runs a single cycle immediately, outside the schedule.
// It works whether or not the loop is running.
func (s *Scheduler) AnalyzeNow(ctx context.Context) error {
	if !s.camera.Ready() {
		if err := s.camera.Initialize(); err != nil {
			return fmt.Errorf("camera unavailable: %w", err)
		}
	}
	s.runCycle(ctx)
	return nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	// Ready can wait on the device, so it is checked before the status
	// lock is taken. The snapshot must stay readable during a slow
	// camera probe.
	ready := s.camera.Ready()

	s.mu.Lock()
	if s.status.Paused {
		s.mu.Unlock()
		return
	}
	now := s.now()

	if !ready {
		s.status.Phase = PhaseWaitingForCamera
		if now.Before(s.nextCamRetry) {
			s.mu.Unlock()
			return
		}
		s.nextCamRetry = now.Add(cameraRetryDelay)
		s.mu.Unlock()
		if err := s.camera.Initialize(); err != nil {
			log.Printf("monitor: camera not ready: %v", err)
			return
		}
		s.mu.Lock()
		s.nextAnalysis = s.now()
		s.mu.Unlock()
		return
	}

	due := !now.Before(s.nextAnalysis)
	if !due {
		if s.status.Phase != PhaseError {
			s.status.Phase = PhaseWaiting
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.runCycle(ctx)
}

// runCycle performs one capture-analyze-record-notify pass. The status
// lock is never held across camera or network calls.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("monitor: cycle panic: %v", r)
			s.mu.Lock()
			s.status.Phase = PhaseError
			s.nextAnalysis = s.now().Add(errorBackoff)
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	s.status.TotalAnalyses++
	s.status.SuccessRate = successRate(s.status.SuccessfulAnalyses, s.status.TotalAnalyses)
	s.status.Phase = PhaseCapturing
	s.mu.Unlock()

	frame, err := s.camera.CaptureHighResFrame(ctx)
	if err != nil {
		log.Printf("monitor: capture failed: %v", err)
		s.reschedule(PhaseWaiting)
		return
	}

	s.setPhase(PhaseAnalyzing)
	outcome := s.analyzer.Analyze(ctx, frame)
	if !outcome.Success {
		log.Printf("monitor: analysis failed: %v", outcome.Err)
		s.reschedule(PhaseWaiting)
		return
	}

	s.setPhase(PhaseProcessing)
	result := analysis.NewResult(outcome.RawText, s.now())

	if _, err := s.recorder.Append(frame, result); err != nil {
		log.Printf("monitor: history append failed: %v", err)
	}

	s.mu.Lock()
	s.status.SuccessfulAnalyses++
	s.status.SuccessRate = successRate(s.status.SuccessfulAnalyses, s.status.TotalAnalyses)
	s.status.LastAnalysis = result.RawText
	s.status.AnalysisAt = result.Timestamp
	s.status.StatusEnum = result.Status
	s.status.Confidence = result.Confidence
	s.status.Healthy = result.Healthy
	if result.Healthy == 0 {
		s.status.FailureDetected = true
		s.status.LastFailureAt = result.Timestamp
	} else {
		s.status.FailureDetected = false
	}
	s.mu.Unlock()

	if result.Healthy == 0 {
		if sent := s.notifier.MaybeNotify(result.Status, result.Confidence, result.RawText, frame); sent {
			log.Printf("monitor: failure alert dispatched, status %s", result.Status)
		}
	}

	s.reschedule(PhaseWaiting)
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.status.Phase = p
	s.mu.Unlock()
}

func (s *Scheduler) reschedule(p Phase) {
	s.mu.Lock()
	s.status.Phase = p
	s.nextAnalysis = s.now().Add(s.interval)
	s.mu.Unlock()
}

func successRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}
