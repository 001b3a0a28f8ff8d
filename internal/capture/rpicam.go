package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Preview and analysis capture geometry. The analysis path trades capture
// latency for resolution so the vision service sees layer-level detail.
const (
	previewWidth    = 640
	previewHeight   = 480
	previewQuality  = 80
	highResWidth    = 1920
	highResHeight   = 1080
	highResQuality  = 95
	commandTimeout  = 8 * time.Second
)

// RpicamBackend captures stills through the modern libcamera CLI
// (rpicam-jpeg). This is the preferred stack on current Raspberry Pi OS.
type RpicamBackend struct {
	binary string
}

// NewRpicamBackend creates the primary capture backend.
func NewRpicamBackend() *RpicamBackend {
	return &RpicamBackend{binary: "rpicam-jpeg"}
}

// Kind returns KindPrimary.
func (b *RpicamBackend) Kind() BackendKind { return KindPrimary }

// Open verifies the rpicam-jpeg binary is present. The actual camera probe
// happens through the test frame taken during device initialization.
func (b *RpicamBackend) Open() error {
	if _, err := exec.LookPath(b.binary); err != nil {
		return fmt.Errorf("rpicam backend: %w", err)
	}
	return nil
}

// Close releases nothing; rpicam-jpeg holds the camera only per invocation.
func (b *RpicamBackend) Close() error { return nil }

// Capture grabs one preview-quality JPEG frame to stdout.
func (b *RpicamBackend) Capture() ([]byte, error) {
	return b.run(previewWidth, previewHeight, previewQuality)
}

// CaptureHighRes grabs one high-resolution JPEG for analysis.
func (b *RpicamBackend) CaptureHighRes() ([]byte, error) {
	return b.run(highResWidth, highResHeight, highResQuality)
}

func (b *RpicamBackend) run(width, height, quality int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary,
		"--nopreview", "--immediate",
		"--timeout", "1",
		"--output", "-",
		"--width", fmt.Sprint(width),
		"--height", fmt.Sprint(height),
		"--quality", fmt.Sprint(quality),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("rpicam backend: capture timed out after %s", commandTimeout)
	}
	if err != nil {
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("rpicam backend: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("rpicam backend: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("rpicam backend: empty frame")
	}

	return stdout.Bytes(), nil
}
