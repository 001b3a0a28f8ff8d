// Package capture provides exclusive, fallback-aware access to the single
// physical camera shared by the live preview and the monitoring scheduler.
package capture

import "errors"

// BackendKind identifies which capture strategy a session is running on.
type BackendKind string

const (
	// KindPrimary is the modern libcamera command-line stack (rpicam-jpeg).
	KindPrimary BackendKind = "primary"
	// KindSecondary is the legacy Pi camera command-line stack (raspistill).
	KindSecondary BackendKind = "secondary"
	// KindGeneric is a plain OpenCV frame grab with no camera-specific tuning.
	KindGeneric BackendKind = "generic"
)

// ErrDeviceUnavailable is returned by Initialize when no backend could
// open the camera and produce a test frame.
var ErrDeviceUnavailable = errors.New("capture: no camera backend available")

// ErrNotInitialized is returned when a capture is attempted before a
// successful Initialize.
var ErrNotInitialized = errors.New("capture: device not initialized")

// Backend is one concrete way of talking to the camera hardware.
// Backends are tried in priority order; the first one that opens and
// produces a non-empty frame wins.
type Backend interface {
	Kind() BackendKind
	Open() error
	Close() error
	// Capture grabs one preview-quality JPEG frame.
	Capture() ([]byte, error)
}

// HighResCapturer is implemented by backends that have a dedicated
// high-resolution capture routine. Backends without it fall back to the
// preview capture path for analysis snapshots.
type HighResCapturer interface {
	CaptureHighRes() ([]byte, error)
}
