//go:build !linux

package camera

import (
	"context"
)

// Webcam is only available on Linux (V4L2).
type Webcam struct{}

// OpenWebcam always fails outside Linux.
func OpenWebcam(device, format, size string) (*Webcam, error) {
	return nil, ErrUnsupported
}

func (w *Webcam) NextJPEG(ctx context.Context) ([]byte, error) { return nil, ErrUnsupported }

func (w *Webcam) Close() error { return nil }
