package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/OrientGo/internal/hw/haptic"
	"github.com/cjeanneret/OrientGo/internal/metrics"
	"github.com/cjeanneret/OrientGo/internal/orientation"
)

// recordingHaptic records Vibrate calls.
type recordingHaptic struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (h *recordingHaptic) Vibrate(d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, d)
	return h.err
}

func (h *recordingHaptic) Calls() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.calls...)
}

// fakeHead is an httptest server recording orientation posts and stop calls.
type fakeHead struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   []map[string]interface{}
	headers  []http.Header
	stops    int
	stopGate chan struct{}

	// When set, orientation posts signal received and then wait for orientGate.
	received   chan struct{}
	orientGate chan struct{}

	status int
	reply  string
}

func newFakeHead(t *testing.T, status int, reply string) *fakeHead {
	t.Helper()
	h := &fakeHead{status: status, reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orient", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.bodies = append(h.bodies, body)
		h.headers = append(h.headers, r.Header.Clone())
		received, gate := h.received, h.orientGate
		h.mu.Unlock()
		if received != nil {
			received <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		w.WriteHeader(h.status)
		io.WriteString(w, h.reply)
	})
	mux.HandleFunc("GET /stop", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.stops++
		gate := h.stopGate
		h.mu.Unlock()
		if gate != nil {
			<-gate
		}
		w.WriteHeader(http.StatusOK)
	})
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Close)
	return h
}

func (h *fakeHead) posts() []map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]interface{}(nil), h.bodies...)
}

func (h *fakeHead) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

// countingSource records subscriptions and exposes the handler.
type countingSource struct {
	mu      sync.Mutex
	calls   int
	handler orientation.Handler
	err     error
}

func (s *countingSource) Subscribe(_ context.Context, fn orientation.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.handler = fn
	return nil
}

type fixture struct {
	reporter *Reporter
	head     *fakeHead
	clock    *clockwork.FakeClock
	haptic   *recordingHaptic
	panel    *Panel
	metrics  *metrics.ReporterMetrics
}

func newFixture(t *testing.T, status int, reply string, throttle time.Duration) *fixture {
	t.Helper()
	head := newFakeHead(t, status, reply)
	clock := clockwork.NewFakeClock()
	hp := &recordingHaptic{}
	panel := NewPanel(nil)
	m := metrics.NewReporterMetrics(prometheus.NewRegistry())

	r, err := New(&countingSource{}, Options{
		Endpoint:    head.URL,
		Throttle:    throttle,
		Client:      head.Client(),
		Clock:       clock,
		Haptic:      hp,
		Diagnostics: panel,
		Metrics:     m,
	})
	require.NoError(t, err)
	return &fixture{reporter: r, head: head, clock: clock, haptic: hp, panel: panel, metrics: m}
}

var sample = orientation.Sample{Alpha: 123.5, Beta: -45.25, Gamma: 12.75}

// ---------- throttle ----------

func TestOnOrientationEvent_Throttle(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 100*time.Millisecond)
	t0 := f.clock.Now()

	assert.True(t, f.reporter.OnOrientationEvent(sample, t0.Add(101*time.Millisecond)), "first event after interval")
	assert.False(t, f.reporter.OnOrientationEvent(sample, t0.Add(150*time.Millisecond)), "within interval")
	assert.False(t, f.reporter.OnOrientationEvent(sample, t0.Add(201*time.Millisecond)), "exactly at interval")
	assert.True(t, f.reporter.OnOrientationEvent(sample, t0.Add(202*time.Millisecond)), "after interval")
	f.reporter.Wait()

	assert.Len(t, f.head.posts(), 2)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.Events))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Throttled))
}

func TestOnOrientationEvent_ZeroThrottleDropsSameInstant(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	now := f.clock.Now().Add(time.Millisecond)

	assert.True(t, f.reporter.OnOrientationEvent(sample, now))
	assert.False(t, f.reporter.OnOrientationEvent(sample, now))
	assert.True(t, f.reporter.OnOrientationEvent(sample, now.Add(time.Nanosecond)))
	f.reporter.Wait()

	assert.Len(t, f.head.posts(), 2)
}

func TestOnOrientationEvent_EventAtConstructionIsThrottled(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	assert.False(t, f.reporter.OnOrientationEvent(sample, f.clock.Now()))
}

// ---------- body ----------

func TestSendReading_BodyHasExactlyThreeAngles(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{"pan":90,"tilt":45,"limited":false}`, 0)

	require.NoError(t, f.reporter.SendReading(context.Background(), sample))

	posts := f.head.posts()
	require.Len(t, posts, 1)
	assert.Equal(t, map[string]interface{}{
		"alpha": 123.5,
		"beta":  -45.25,
		"gamma": 12.75,
	}, posts[0])
}

func TestSendReading_Headers(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)

	require.NoError(t, f.reporter.SendReading(context.Background(), sample))

	f.head.mu.Lock()
	hdr := f.head.headers[0]
	f.head.mu.Unlock()
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	_, err := uuid.Parse(hdr.Get("X-Request-ID"))
	assert.NoError(t, err, "X-Request-ID should be a UUID")
}

// ---------- responses ----------

func TestSendReading_Status210VibratesOnce(t *testing.T) {
	f := newFixture(t, StatusHaptic, `{"pan":180,"tilt":30,"limited":true}`, 0)

	require.True(t, f.reporter.OnOrientationEvent(sample, f.clock.Now().Add(time.Second)))
	f.reporter.Wait()

	assert.Equal(t, []time.Duration{200 * time.Millisecond}, f.haptic.Calls())
	assert.Empty(t, f.panel.Last())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HapticPulses.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Responses.WithLabelValues("210")))
}

func TestSendReading_Status210UnsupportedHapticGoesToDiagnostics(t *testing.T) {
	f := newFixture(t, StatusHaptic, `{}`, 0)
	f.reporter.haptic = haptic.Unsupported{}

	require.NoError(t, f.reporter.SendReading(context.Background(), sample))

	assert.Equal(t, haptic.ErrUnsupported.Error(), f.panel.Last())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HapticPulses.WithLabelValues("unsupported")))
}

func TestSendReading_Status210FailingHapticGoesToDiagnostics(t *testing.T) {
	f := newFixture(t, StatusHaptic, `{}`, 0)
	f.haptic.err = errors.New("motor stalled")

	require.NoError(t, f.reporter.SendReading(context.Background(), sample))

	assert.Equal(t, "motor stalled", f.panel.Last())
}

func TestSendReading_Status404NoHaptic(t *testing.T) {
	f := newFixture(t, http.StatusNotFound, `not found`, 0)

	err := f.reporter.SendReading(context.Background(), sample)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Empty(t, f.haptic.Calls())
	assert.Empty(t, f.panel.Last())
}

func TestOnOrientationEvent_Status404DoesNotEscape(t *testing.T) {
	f := newFixture(t, http.StatusNotFound, ``, 0)

	assert.NotPanics(t, func() {
		f.reporter.OnOrientationEvent(sample, f.clock.Now().Add(time.Second))
		f.reporter.Wait()
	})
	assert.Empty(t, f.haptic.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Responses.WithLabelValues("4xx")))
}

func TestSendReading_NonJSONBodyIsTransportError(t *testing.T) {
	f := newFixture(t, http.StatusOK, `<html>`, 0)

	err := f.reporter.SendReading(context.Background(), sample)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSendReading_NetworkFailure(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	f.head.Close() // simulate offline

	err := f.reporter.SendReading(context.Background(), sample)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TransportErrors))
}

func TestOnOrientationEvent_NetworkFailureCompletes(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	f.head.Close()

	assert.NotPanics(t, func() {
		assert.True(t, f.reporter.OnOrientationEvent(sample, f.clock.Now().Add(time.Second)))
		f.reporter.Wait()
	})
	assert.Empty(t, f.panel.Last(), "transport errors are not shown to the user")
}

// ---------- stop ----------

func TestStop_SingleGetWithoutWaiting(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	gate := make(chan struct{})
	f.head.mu.Lock()
	f.head.stopGate = gate
	f.head.mu.Unlock()

	returned := make(chan struct{})
	go func() {
		f.reporter.Stop(context.Background())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the response")
	}

	close(gate)
	f.reporter.Wait()
	assert.Equal(t, 1, f.head.stopCount())
	assert.Empty(t, f.head.posts())
}

func TestStop_SurvivesCallerCancel(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	ctx, cancel := context.WithCancel(context.Background())

	f.reporter.Stop(ctx)
	cancel()
	f.reporter.Wait()

	assert.Equal(t, 1, f.head.stopCount())
}

func TestStop_OfflineHeadIgnored(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	f.head.Close()

	assert.NotPanics(t, func() {
		f.reporter.Stop(context.Background())
		f.reporter.Wait()
	})
}

// ---------- initialize ----------

func TestInitialize_SubscribesOnce(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	src := &countingSource{}
	f.reporter.source = src

	f.reporter.Initialize(context.Background())
	f.reporter.Initialize(context.Background())

	assert.True(t, f.reporter.Subscribed())
	assert.Equal(t, 1, src.calls)

	// Events delivered by the source are stamped with the reporter clock.
	f.clock.Advance(time.Second)
	src.handler(sample)
	f.reporter.Wait()
	assert.Len(t, f.head.posts(), 1)
}

func TestInitialize_UnsupportedSourceGoesToDiagnostics(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	f.reporter.source = orientation.Unsupported{}

	assert.NotPanics(t, func() { f.reporter.Initialize(context.Background()) })

	assert.False(t, f.reporter.Subscribed())
	assert.Equal(t, orientation.ErrUnsupported.Error(), f.panel.Last())
}

func TestInitialize_RetryAfterFailure(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	src := &countingSource{err: errors.New("sensor busy")}
	f.reporter.source = src

	f.reporter.Initialize(context.Background())
	assert.False(t, f.reporter.Subscribed())
	assert.Equal(t, "sensor busy", f.panel.Last())

	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	f.reporter.Initialize(context.Background())
	assert.True(t, f.reporter.Subscribed())
}

func TestInitialize_CancelKeepsInflightPost(t *testing.T) {
	f := newFixture(t, StatusHaptic, `{"limited":true}`, 0)
	f.head.mu.Lock()
	f.head.received = make(chan struct{}, 1)
	f.head.orientGate = make(chan struct{})
	f.head.mu.Unlock()
	src := &countingSource{}
	f.reporter.source = src

	ctx, cancel := context.WithCancel(context.Background())
	f.reporter.Initialize(ctx)
	f.clock.Advance(time.Second)
	src.handler(sample)

	select {
	case <-f.head.received:
	case <-time.After(5 * time.Second):
		t.Fatal("orientation post never reached the head")
	}
	cancel()
	close(f.head.orientGate)
	f.reporter.Wait()

	assert.Equal(t, []time.Duration{DefaultHapticPulse}, f.haptic.Calls())
	assert.Zero(t, testutil.ToFloat64(f.metrics.TransportErrors))
}

func TestInitialize_EventsAfterCancelIgnored(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`, 0)
	src := &countingSource{}
	f.reporter.source = src

	ctx, cancel := context.WithCancel(context.Background())
	f.reporter.Initialize(ctx)
	cancel()

	f.clock.Advance(time.Second)
	assert.False(t, f.reporter.OnOrientationEvent(sample, f.clock.Now()))
	src.handler(sample)

	// Late events racing with Wait must not trip it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			src.handler(sample)
		}
	}()
	f.reporter.Wait()
	<-done
	f.reporter.Wait()

	assert.Empty(t, f.head.posts())
	assert.Zero(t, testutil.ToFloat64(f.metrics.Events))
}

// ---------- construction ----------

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{Endpoint: "http://head"})
	assert.Error(t, err, "nil source")

	_, err = New(orientation.Unsupported{}, Options{Endpoint: "ftp://head"})
	assert.Error(t, err, "bad scheme")

	_, err = New(orientation.Unsupported{}, Options{Endpoint: "http://head", Throttle: -time.Second})
	assert.Error(t, err, "negative throttle")
}

func TestNew_JoinsPaths(t *testing.T) {
	r, err := New(orientation.Unsupported{}, Options{Endpoint: "https://head.local:8443/pan/?x=1"})
	require.NoError(t, err)
	assert.Equal(t, "https://head.local:8443/pan/orient", r.orientURL)
	assert.Equal(t, "https://head.local:8443/pan/stop", r.stopURL)
}
