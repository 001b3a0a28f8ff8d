package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// GocvBackend is the generic frame-grab fallback using OpenCV's
// VideoCapture. It works against any V4L2 device but has no dedicated
// high-resolution routine, so analysis captures reuse the stream path.
type GocvBackend struct {
	deviceID int
	mu       sync.Mutex
	cap      *gocv.VideoCapture
}

// NewGocvBackend creates the generic capture backend for the given
// V4L2 device ID.
func NewGocvBackend(deviceID int) *GocvBackend {
	return &GocvBackend{deviceID: deviceID}
}

// Kind returns KindGeneric.
func (b *GocvBackend) Kind() BackendKind { return KindGeneric }

// Open opens the video device and sets the capture geometry.
func (b *GocvBackend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cap != nil {
		return nil
	}

	cap, err := gocv.OpenVideoCapture(b.deviceID)
	if err != nil {
		return fmt.Errorf("gocv backend: %w", err)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, previewWidth)
	cap.Set(gocv.VideoCaptureFrameHeight, previewHeight)

	b.cap = cap
	return nil
}

// Close releases the video device.
func (b *GocvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cap == nil {
		return nil
	}
	err := b.cap.Close()
	b.cap = nil
	return err
}

// Capture grabs one frame and encodes it as JPEG.
func (b *GocvBackend) Capture() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cap == nil {
		return nil, errors.New("gocv backend: device not open")
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := b.cap.Read(&mat); !ok {
		return nil, errors.New("gocv backend: failed to read frame")
	}
	if mat.Empty() {
		return nil, errors.New("gocv backend: captured frame is empty")
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("gocv backend: encode: %w", err)
	}
	defer buf.Close()

	// Copy out; the native buffer is freed on Close.
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
