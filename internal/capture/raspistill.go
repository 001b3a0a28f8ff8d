package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// RaspistillBackend captures stills through the legacy Pi camera CLI.
// Kept for older Raspberry Pi OS images where the libcamera stack is not
// installed.
type RaspistillBackend struct {
	binary string
}

// NewRaspistillBackend creates the secondary capture backend.
func NewRaspistillBackend() *RaspistillBackend {
	return &RaspistillBackend{binary: "raspistill"}
}

// Kind returns KindSecondary.
func (b *RaspistillBackend) Kind() BackendKind { return KindSecondary }

// Open verifies the raspistill binary is present.
func (b *RaspistillBackend) Open() error {
	if _, err := exec.LookPath(b.binary); err != nil {
		return fmt.Errorf("raspistill backend: %w", err)
	}
	return nil
}

// Close releases nothing; raspistill holds the camera only per invocation.
func (b *RaspistillBackend) Close() error { return nil }

// Capture grabs one preview-quality JPEG frame to stdout.
func (b *RaspistillBackend) Capture() ([]byte, error) {
	return b.run(previewWidth, previewHeight, previewQuality)
}

// CaptureHighRes grabs one high-resolution JPEG for analysis.
func (b *RaspistillBackend) CaptureHighRes() ([]byte, error) {
	return b.run(highResWidth, highResHeight, highResQuality)
}

func (b *RaspistillBackend) run(width, height, quality int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary,
		"-n",
		"-t", "1",
		"-o", "-",
		"-w", fmt.Sprint(width),
		"-h", fmt.Sprint(height),
		"-q", fmt.Sprint(quality),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("raspistill backend: capture timed out after %s", commandTimeout)
	}
	if err != nil {
		if msg := stderr.String(); msg != "" {
			return nil, fmt.Errorf("raspistill backend: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("raspistill backend: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("raspistill backend: empty frame")
	}

	return stdout.Bytes(), nil
}
