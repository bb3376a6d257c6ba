//go:build linux

package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackjack/webcam"
	"github.com/cjeanneret/OrientGo/internal/debug"
)

const (
	pixFmtMJPG = 0x47504A4D
	pixFmtPJPG = 0x47504A50
	pixFmtYUYV = 0x56595559
)

// formatPreference lists the supported pixel formats, best first. JPEG
// formats pass through without re-encoding.
var formatPreference = []webcam.PixelFormat{pixFmtMJPG, pixFmtPJPG, pixFmtYUYV}

func isSupported(f webcam.PixelFormat) bool {
	for _, p := range formatPreference {
		if p == f {
			return true
		}
	}
	return false
}

// frameTimeout is the WaitForFrame timeout in seconds.
const frameTimeout = 5

// Webcam captures frames from a V4L2 device.
type Webcam struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  uint32
	height uint32
}

// OpenWebcam opens device, negotiates format and size, and starts streaming.
func OpenWebcam(device, format, size string) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	debug.Info("Camera: opened %s", device)

	formats := cam.GetSupportedFormats()
	f, err := pickFormat(formats, format)
	if err != nil {
		cam.Close()
		return nil, err
	}

	var sizes []Size
	for _, fs := range cam.GetSupportedFrameSizes(f) {
		sizes = append(sizes, Size{Width: fs.MaxWidth, Height: fs.MaxHeight})
	}
	sz, err := PickSize(sizes, size)
	if err != nil {
		cam.Close()
		return nil, err
	}

	debug.Verbose("Camera: requesting %s %s", formats[f], sz)
	gotF, w, h, err := cam.SetImageFormat(f, sz.Width, sz.Height)
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("set image format: %w", err)
	}
	debug.Info("Camera: resulting format %s %dx%d", formats[gotF], w, h)

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	return &Webcam{cam: cam, format: gotF, width: w, height: h}, nil
}

// pickFormat returns the format described as want, or the most preferred
// supported format the device offers when want is empty.
func pickFormat(formats map[webcam.PixelFormat]string, want string) (webcam.PixelFormat, error) {
	if want == "" {
		for _, f := range formatPreference {
			if _, ok := formats[f]; ok {
				return f, nil
			}
		}
		return 0, errors.New("no supported pixel format found")
	}
	for f, desc := range formats {
		if desc != want {
			continue
		}
		if !isSupported(f) {
			return 0, fmt.Errorf("%s format is not supported", desc)
		}
		return f, nil
	}
	return 0, fmt.Errorf("pixel format %q not offered by the device", want)
}

func (w *Webcam) NextJPEG(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := w.cam.WaitForFrame(frameTimeout)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			debug.Verbose("Camera: frame timeout")
			continue
		default:
			return nil, fmt.Errorf("wait for frame: %w", err)
		}

		frame, err := w.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if len(frame) == 0 {
			continue
		}

		switch w.format {
		case pixFmtYUYV:
			return YUYVToJPEG(frame, int(w.width), int(w.height), 75)
		default:
			// MJPEG frames are already JPEG; the driver buffer is reused.
			return append([]byte(nil), frame...), nil
		}
	}
}

func (w *Webcam) Close() error {
	if err := w.cam.StopStreaming(); err != nil {
		debug.Error(fmt.Errorf("stop streaming: %w", err))
	}
	return w.cam.Close()
}
