// Package reporter forwards device-orientation samples to the pan/tilt head.
//
// A Reporter subscribes to an orientation source, drops samples that arrive
// within the throttle interval of the last forwarded one, and POSTs the rest
// as JSON without waiting for the answer. A 210 answer means the head hit a
// mechanical limit and is acknowledged with a short vibration.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/hw/haptic"
	"github.com/cjeanneret/OrientGo/internal/metrics"
	"github.com/cjeanneret/OrientGo/internal/orientation"
)

const (
	OrientPath = "/orient"
	StopPath   = "/stop"

	// StatusHaptic is the head's "limit reached" answer to an orientation post.
	StatusHaptic = 210

	// DefaultHapticPulse is the vibration length for StatusHaptic.
	DefaultHapticPulse = 200 * time.Millisecond

	maxResponseBody = 64 << 10
)

// ErrTransport marks failures where no usable answer was received: network
// errors and bodies that are not JSON.
var ErrTransport = errors.New("transport error")

// StatusError is returned when the head answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %s", e.Status)
}

// Options configures a Reporter. Zero values pick defaults.
type Options struct {
	Endpoint    string        // base URL of the head, e.g. https://panhead.local
	Throttle    time.Duration // 0 = forward every event with a later timestamp
	HapticPulse time.Duration
	Client      *http.Client
	Clock       clockwork.Clock
	Haptic      haptic.Haptic
	Diagnostics Diagnostics
	Metrics     *metrics.ReporterMetrics // optional
}

// Reporter is the orientation forwarder. It is safe for concurrent use.
type Reporter struct {
	source    orientation.Source
	orientURL string
	stopURL   string
	throttle  time.Duration
	pulse     time.Duration
	client    *http.Client
	clock     clockwork.Clock
	haptic    haptic.Haptic
	diag      Diagnostics
	metrics   *metrics.ReporterMetrics

	initMu     sync.Mutex
	subscribed bool

	mu       sync.Mutex
	lastSent time.Time
	subCtx   context.Context // nil until Initialize
	baseCtx  context.Context

	flightMu sync.Mutex
	idle     *sync.Cond
	inflight int
}

// New creates a Reporter for source. The throttle reference time is the
// clock's current time.
func New(source orientation.Source, opts Options) (*Reporter, error) {
	if source == nil {
		return nil, errors.New("orientation source is required")
	}
	base, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be http or https, got %q", opts.Endpoint)
	}
	if opts.Throttle < 0 {
		return nil, fmt.Errorf("throttle must be >= 0, got %v", opts.Throttle)
	}

	r := &Reporter{
		source:    source,
		orientURL: joinPath(base, OrientPath),
		stopURL:   joinPath(base, StopPath),
		throttle:  opts.Throttle,
		pulse:     opts.HapticPulse,
		client:    opts.Client,
		clock:     opts.Clock,
		haptic:    opts.Haptic,
		diag:      opts.Diagnostics,
		metrics:   opts.Metrics,
		baseCtx:   context.Background(),
	}
	if r.pulse <= 0 {
		r.pulse = DefaultHapticPulse
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: 5 * time.Second}
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.haptic == nil {
		r.haptic = haptic.Unsupported{}
	}
	if r.diag == nil {
		r.diag = NewPanel(nil)
	}
	r.lastSent = r.clock.Now()
	r.idle = sync.NewCond(&r.flightMu)

	return r, nil
}

func joinPath(base *url.URL, p string) string {
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + p
	u.RawQuery = ""
	return u.String()
}

// Initialize subscribes to the orientation source. A source that cannot
// deliver events is reported on the Diagnostics surface and the reporter
// stays unsubscribed; the error is not returned. Once subscribed, further
// calls do nothing. Cancelling ctx ends the subscription; requests already
// started still run to completion, bounded by the client timeout.
func (r *Reporter) Initialize(ctx context.Context) {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if r.subscribed {
		return
	}

	r.mu.Lock()
	r.subCtx = ctx
	r.baseCtx = context.WithoutCancel(ctx)
	r.mu.Unlock()

	err := r.source.Subscribe(ctx, func(s orientation.Sample) {
		r.OnOrientationEvent(s, r.clock.Now())
	})
	if err != nil {
		debug.Errorf("subscribe to orientation events: %v", err)
		r.diag.Show(err.Error())
		return
	}
	r.subscribed = true
	debug.Info("Subscribed to orientation events (throttle %v)", r.throttle)
}

// Subscribed reports whether Initialize succeeded.
func (r *Reporter) Subscribed() bool {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	return r.subscribed
}

// OnOrientationEvent handles one event observed at now. Events no later than
// throttle after the last forwarded one are dropped; otherwise the sample is
// sent in the background. Events arriving after the subscription context is
// done are ignored. Returns whether the sample was forwarded.
func (r *Reporter) OnOrientationEvent(s orientation.Sample, now time.Time) bool {
	r.mu.Lock()
	if r.subCtx != nil && r.subCtx.Err() != nil {
		r.mu.Unlock()
		debug.Trace("Ignored sample %+v after unsubscribe", s)
		return false
	}
	if r.metrics != nil {
		r.metrics.Events.Inc()
	}
	if now.Sub(r.lastSent) <= r.throttle {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.Throttled.Inc()
		}
		debug.Trace("Throttled sample %+v", s)
		return false
	}
	r.lastSent = now
	ctx := r.baseCtx
	r.begin()
	r.mu.Unlock()

	debug.Sample(s.Alpha, s.Beta, s.Gamma)

	go func() {
		defer r.end()
		if err := r.SendReading(ctx, s); err != nil {
			debug.Errorf("send reading: %v", err)
		}
	}()
	return true
}

// SendReading posts s to the head and handles the answer. Haptic failures go
// to Diagnostics; transport and status failures are returned.
func (r *Reporter) SendReading(ctx context.Context, s orientation.Sample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.orientURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := r.clock.Now()
	resp, err := r.client.Do(req)
	if r.metrics != nil {
		r.metrics.RequestDuration.Observe(r.clock.Since(start).Seconds())
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.TransportErrors.Inc()
		}
		return fmt.Errorf("%w: post orientation: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	debug.Request(http.MethodPost, OrientPath, resp.StatusCode)
	if r.metrics != nil {
		r.metrics.Responses.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()
	}

	if resp.StatusCode == StatusHaptic {
		r.vibrate()
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var answer interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&answer); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}
	debug.Live("Answer %v", answer)
	return nil
}

func (r *Reporter) vibrate() {
	err := r.haptic.Vibrate(r.pulse)
	if r.metrics != nil {
		result := "ok"
		switch {
		case errors.Is(err, haptic.ErrUnsupported):
			result = "unsupported"
		case err != nil:
			result = "error"
		}
		r.metrics.HapticPulses.WithLabelValues(result).Inc()
	}
	if err != nil {
		r.diag.Show(err.Error())
	}
}

// Stop asks the head to stop with a single GET and returns immediately.
// The answer, or the lack of one, is ignored.
func (r *Reporter) Stop(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	r.begin()
	go func() {
		defer r.end()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.stopURL, nil)
		if err != nil {
			debug.Errorf("build stop request: %v", err)
			return
		}
		resp, err := r.client.Do(req)
		if err != nil {
			debug.Verbose("stop request: %v", err)
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()
	}()
}

// Wait blocks until every request started so far has finished.
func (r *Reporter) Wait() {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()
	for r.inflight > 0 {
		r.idle.Wait()
	}
}

func (r *Reporter) begin() {
	r.flightMu.Lock()
	r.inflight++
	r.flightMu.Unlock()
}

func (r *Reporter) end() {
	r.flightMu.Lock()
	r.inflight--
	if r.inflight == 0 {
		r.idle.Broadcast()
	}
	r.flightMu.Unlock()
}
