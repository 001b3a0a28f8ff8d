package capture

import (
	"context"
	"log"
	"sync"
	"time"
)

// Initialization probing: each backend gets a few chances to produce a
// non-empty test frame before the device moves on to the next strategy.
const (
	testFrameAttempts = 3
	testFrameDelay    = 500 * time.Millisecond
)

// Session describes the active capture backend. At most one session exists
// per Device; it is created by Initialize and destroyed by Release or an
// unrecoverable failure.
type Session struct {
	Kind  BackendKind
	Ready bool
}

// Device arbitrates a single physical camera between the continuous
// preview and the periodic analysis snapshot. All capture paths funnel
// through one exclusive slot: the preview path tries the slot and skips
// the frame when it is busy, the analysis path waits for it with a
// bounded timeout.
type Device struct {
	backends []Backend

	// initMu serializes Initialize. Probing a backend can take seconds
	// (subprocess captures, retry sleeps), so it must never run under
	// mu: state readers only wait for the short publish step.
	initMu sync.Mutex

	mu      sync.Mutex // guards session/active, held only for field access
	session *Session
	active  Backend

	// slot is a 1-capacity semaphore. Unlike a sync.Mutex it supports
	// both try-acquire (preview) and timed acquire (analysis).
	slot chan struct{}

	captureTimeout time.Duration
}

// NewDevice creates a device that tries the given backends in order.
// The default priority order is rpicam, raspistill, then a generic
// OpenCV grab (see DefaultBackends).
func NewDevice(backends []Backend, captureTimeout time.Duration) *Device {
	if captureTimeout <= 0 {
		captureTimeout = 10 * time.Second
	}
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &Device{
		backends:       backends,
		slot:           slot,
		captureTimeout: captureTimeout,
	}
}

// DefaultBackends returns the standard strategy order for a Raspberry Pi:
// modern libcamera CLI, legacy CLI, generic OpenCV frame grab.
func DefaultBackends(cameraID int) []Backend {
	return []Backend{
		NewRpicamBackend(),
		NewRaspistillBackend(),
		NewGocvBackend(cameraID),
	}
}

// Initialize opens the first backend that can produce a non-empty test
// frame. It is idempotent: calling it on an initialized device is a no-op.
// Backend failures are logged and swallowed; if every strategy fails the
// device stays unavailable and ErrDeviceUnavailable is returned.
func (d *Device) Initialize() error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.Ready() {
		return nil
	}

	for _, b := range d.backends {
		if err := b.Open(); err != nil {
			log.Printf("camera: %s backend open failed: %v", b.Kind(), err)
			continue
		}

		if d.probe(b) {
			d.mu.Lock()
			d.active = b
			d.session = &Session{Kind: b.Kind(), Ready: true}
			d.mu.Unlock()
			log.Printf("camera: initialized using %s backend", b.Kind())
			return nil
		}

		if err := b.Close(); err != nil {
			log.Printf("camera: %s backend close failed: %v", b.Kind(), err)
		}
	}

	d.mu.Lock()
	d.session = nil
	d.active = nil
	d.mu.Unlock()
	return ErrDeviceUnavailable
}

// probe tries to pull one non-empty test frame from an opened backend.
func (d *Device) probe(b Backend) bool {
	for attempt := 1; attempt <= testFrameAttempts; attempt++ {
		frame, err := b.Capture()
		if err == nil && len(frame) > 0 {
			return true
		}
		log.Printf("camera: %s backend test frame %d/%d failed: %v",
			b.Kind(), attempt, testFrameAttempts, err)
		if attempt < testFrameAttempts {
			time.Sleep(testFrameDelay)
		}
	}
	return false
}

// Ready reports whether a capture session is active.
func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session != nil && d.session.Ready
}

// Session returns a copy of the active session, or nil when uninitialized.
func (d *Device) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	s := *d.session
	return &s
}

// CaptureStreamFrame grabs one preview frame without waiting. When the
// exclusive slot is held (an analysis capture is in flight) it returns nil
// immediately so the preview skips the frame instead of stalling.
func (d *Device) CaptureStreamFrame() []byte {
	select {
	case <-d.slot:
	default:
		return nil
	}
	defer func() { d.slot <- struct{}{} }()

	b := d.activeBackend()
	if b == nil {
		return nil
	}

	frame, err := b.Capture()
	if err != nil {
		log.Printf("camera: stream capture failed: %v", err)
		d.markUnavailable()
		return nil
	}
	return frame
}

// CaptureHighResFrame grabs one analysis-quality frame, waiting for the
// exclusive slot up to the device's capture timeout (or ctx cancellation,
// whichever comes first). Backends without a dedicated high-resolution
// routine fall back to the stream capture path.
func (d *Device) CaptureHighResFrame(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(d.captureTimeout)
	defer timer.Stop()

	select {
	case <-d.slot:
	case <-timer.C:
		return nil, ErrDeviceUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { d.slot <- struct{}{} }()

	b := d.activeBackend()
	if b == nil {
		return nil, ErrNotInitialized
	}

	var frame []byte
	var err error
	if hr, ok := b.(HighResCapturer); ok {
		frame, err = hr.CaptureHighRes()
	} else {
		frame, err = b.Capture()
	}
	if err != nil {
		log.Printf("camera: high-res capture failed: %v", err)
		d.markUnavailable()
		return nil, err
	}
	return frame, nil
}

// Release tears down the active backend. Safe to call when the device was
// never initialized.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		if err := d.active.Close(); err != nil {
			log.Printf("camera: backend close failed: %v", err)
		}
	}
	d.active = nil
	d.session = nil
}

func (d *Device) activeBackend() Backend {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil || !d.session.Ready {
		return nil
	}
	return d.active
}

// markUnavailable drops the session after a capture failure so callers see
// "unavailable" until the next Initialize succeeds.
func (d *Device) markUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		if err := d.active.Close(); err != nil {
			log.Printf("camera: backend close failed: %v", err)
		}
	}
	d.active = nil
	d.session = nil
}
