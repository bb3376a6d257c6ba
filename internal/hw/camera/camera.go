package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned when no video device can be used on this platform.
var ErrUnsupported = errors.New("video capture is not supported on this platform")

// FrameSource is the high-level interface for anything producing video
// frames, regardless of how they are captured (V4L2, generated, ...).
type FrameSource interface {
	// NextJPEG blocks until the next frame is available and returns it
	// JPEG-encoded. The returned slice is owned by the caller.
	NextJPEG(ctx context.Context) ([]byte, error)
	Close() error
}

// Options selects and tunes a FrameSource.
type Options struct {
	Type   string        // "webcam", "mock" or "none"
	Device string        // e.g. /dev/video0
	Format string        // pixel format description, empty = first supported
	Size   string        // "WxH", empty = largest
	Frame  time.Duration // mock frame interval
}

// New selects a FrameSource from opts. Type "none" returns (nil, nil).
func New(opts Options) (FrameSource, error) {
	switch opts.Type {
	case "", "none":
		return nil, nil
	case "mock":
		return NewMock(640, 480, opts.Frame), nil
	case "webcam":
		w, err := OpenWebcam(opts.Device, opts.Format, opts.Size)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", opts.Type)
	}
}
