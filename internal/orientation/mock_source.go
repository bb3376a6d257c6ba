package orientation

import (
	"context"
	"math"
	"time"
)

// MockSource emits smoothly changing orientations at a fixed period.
type MockSource struct {
	interval time.Duration
}

// NewMockSource creates a mock source; interval defaults to 50ms
// (about the rate browsers fire deviceorientation).
func NewMockSource(interval time.Duration) *MockSource {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &MockSource{interval: interval}
}

func (m *MockSource) Subscribe(ctx context.Context, fn Handler) error {
	start := time.Now()
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Both cases may be ready; never deliver after cancel.
				if ctx.Err() != nil {
					return
				}
				fn(MockAt(time.Since(start)))
			}
		}
	}()
	return nil
}

// MockAt is the synthetic pose elapsed after start: a slow sweep in alpha
// with gentle oscillations in beta and gamma.
func MockAt(elapsed time.Duration) Sample {
	sec := elapsed.Seconds()
	return Sample{
		Alpha: math.Mod(sec*30, 360),
		Beta:  15 * math.Cos(sec*0.7),
		Gamma: 60 * math.Sin(sec),
	}
}
