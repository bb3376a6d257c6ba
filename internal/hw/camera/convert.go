package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sort"
)

// Size is a frame size in pixels.
type Size struct {
	Width  uint32
	Height uint32
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// PickSize returns the requested size, or the largest one when want is empty.
func PickSize(sizes []Size, want string) (Size, error) {
	if len(sizes) == 0 {
		return Size{}, fmt.Errorf("no frame sizes available")
	}
	sorted := append([]Size(nil), sizes...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Width*sorted[i].Height < sorted[j].Width*sorted[j].Height
	})
	if want == "" {
		return sorted[len(sorted)-1], nil
	}
	for _, s := range sorted {
		if s.String() == want {
			return s, nil
		}
	}
	return Size{}, fmt.Errorf("no matching frame size %q", want)
}

// YUYVToJPEG converts a packed YUYV 4:2:2 frame to JPEG.
func YUYVToJPEG(frame []byte, w, h int, quality int) ([]byte, error) {
	if len(frame) < w*h*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(frame), w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for i := range img.Cb {
		ii := i * 4
		img.Y[i*2] = frame[ii]
		img.Y[i*2+1] = frame[ii+2]
		img.Cb[i] = frame[ii+1]
		img.Cr[i] = frame[ii+3]
	}
	return encodeJPEG(img, quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
