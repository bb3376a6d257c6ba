package orientation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrUnsupported is returned by Subscribe when the device cannot deliver
// orientation events.
var ErrUnsupported = errors.New("device orientation is not supported")

// Handler receives one Sample per orientation event.
type Handler func(Sample)

// Source delivers orientation events to a handler.
type Source interface {
	// Subscribe registers fn and returns once delivery has started.
	// Events keep flowing from the source's own goroutine until ctx ends.
	Subscribe(ctx context.Context, fn Handler) error
}

// Unsupported is the Source of a device without orientation sensor.
type Unsupported struct{}

func (Unsupported) Subscribe(context.Context, Handler) error { return ErrUnsupported }

// Options selects a Source.
type Options struct {
	Type     string        // "mock", "replay", "stdin" or "none"
	Path     string        // replay file
	Interval time.Duration // mock event period / replay pacing
}

// New selects a Source by type. The returned closer releases an opened
// replay file and is never nil.
func New(opts Options) (Source, io.Closer, error) {
	switch opts.Type {
	case "mock":
		return NewMockSource(opts.Interval), nopCloser{}, nil
	case "replay":
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open replay file: %w", err)
		}
		return NewReplaySource(f, opts.Interval), f, nil
	case "stdin":
		return NewReplaySource(os.Stdin, 0), nopCloser{}, nil
	case "", "none":
		return Unsupported{}, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported orientation source: %s", opts.Type)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
