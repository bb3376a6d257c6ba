package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/hw/camera"
)

// FrameSink receives encoded frames. Publish must not block.
type FrameSink interface {
	Publish(frame []byte)
}

// Stream moves frames from a camera to the video clients.
type Stream struct {
	source camera.FrameSource
	sink   FrameSink
}

func NewStream(src camera.FrameSource, sink FrameSink) *Stream {
	return &Stream{
		source: src,
		sink:   sink,
	}
}

// Run pumps frames until ctx is cancelled (returns nil) or the camera fails.
func (s *Stream) Run(ctx context.Context) error {
	debug.Section("Video Stream")
	frames := 0
	for {
		frame, err := s.source.NextJPEG(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				debug.Verbose("Video stream stopped after %d frames", frames)
				return nil
			}
			return fmt.Errorf("video stream: %w", err)
		}
		frames++
		debug.Trace("Frame %d: %d bytes", frames, len(frame))
		s.sink.Publish(frame)
	}
}
