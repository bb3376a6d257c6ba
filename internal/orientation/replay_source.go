package orientation

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/cjeanneret/OrientGo/internal/debug"
)

// ReplaySource reads JSON-lines samples ({"alpha":..,"beta":..,"gamma":..})
// from a reader. Blank, malformed and out-of-range lines are skipped.
type ReplaySource struct {
	r        io.Reader
	interval time.Duration
	done     chan struct{}
}

// NewReplaySource replays r; a positive interval paces events, zero delivers
// as fast as lines arrive.
func NewReplaySource(r io.Reader, interval time.Duration) *ReplaySource {
	return &ReplaySource{r: r, interval: interval, done: make(chan struct{})}
}

// Done is closed when the input is exhausted or the subscription ended.
func (s *ReplaySource) Done() <-chan struct{} { return s.done }

func (s *ReplaySource) Subscribe(ctx context.Context, fn Handler) error {
	go func() {
		defer close(s.done)

		scanner := bufio.NewScanner(s.r)
		line := 0
		for scanner.Scan() {
			line++
			if ctx.Err() != nil {
				return
			}
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var sample Sample
			if err := json.Unmarshal(raw, &sample); err != nil {
				debug.Verbose("Replay: line %d skipped: %v", line, err)
				continue
			}
			if err := sample.Validate(); err != nil {
				debug.Verbose("Replay: line %d skipped: %v", line, err)
				continue
			}

			fn(sample)

			if s.interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.interval):
				}
			}
		}
		if err := scanner.Err(); err != nil {
			debug.Errorf("replay read: %v", err)
		}
	}()
	return nil
}
