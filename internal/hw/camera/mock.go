package camera

import (
	"context"
	"image"
	"image/color"
	"time"
)

// Mock generates a moving gradient, for development without a camera.
type Mock struct {
	w, h     int
	interval time.Duration
	n        int
}

// NewMock creates a generator of w×h frames, one every interval (default 100ms).
func NewMock(w, h int, interval time.Duration) *Mock {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Mock{w: w, h: h, interval: interval}
}

func (m *Mock) NextJPEG(ctx context.Context) ([]byte, error) {
	t := time.NewTimer(m.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	m.n++
	img := image.NewRGBA(image.Rect(0, 0, m.w, m.h))
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + m.n*4) % 256),
				G: uint8(y % 256),
				B: 128,
				A: 255,
			})
		}
	}
	return encodeJPEG(img, 75)
}

func (m *Mock) Close() error { return nil }
