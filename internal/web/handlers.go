package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/logic/motion"
	"github.com/cjeanneret/OrientGo/internal/metrics"
	"github.com/cjeanneret/OrientGo/internal/orientation"
)

const (
	// StatusLimited answers an orientation update that pushed a servo
	// against its end stop.
	StatusLimited = 210

	maxOrientBody = 1 << 10
)

// Pointer drives the head towards a handheld orientation.
type Pointer interface {
	Point(s orientation.Sample) (motion.Result, error)
}

// StopFunc is called once when a client asks the head to stop.
type StopFunc func()

// ClientConfig holds the browser reporter settings served on GET /config.
type ClientConfig struct {
	ThrottleMs    int `json:"throttle_ms"`
	HapticPulseMs int `json:"haptic_pulse_ms"`
}

// Deps holds the collaborators of the HTTP handlers. Nil fields disable the
// matching feature.
type Deps struct {
	Head        Pointer
	Broadcaster *StatusBroadcaster
	Frames      *FrameBroadcaster
	Limiter     *rate.Limiter
	Stop        StopFunc
	Client      ClientConfig
	Metrics     *metrics.HeadMetrics
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	staticFS fs.FS
	stopOnce sync.Once
}

// NewHandlers creates handlers with the given dependencies.
// If deps.Head is nil, POST /orient will return 503 Service Unavailable.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewStatusBroadcaster()
	}
	return &Handlers{
		Deps:     deps,
		staticFS: staticFS,
	}
}

func (h *Handlers) count(result string) {
	if h.Metrics != nil {
		h.Metrics.OrientRequests.WithLabelValues(result).Inc()
	}
}

// HandleOrient handles POST /orient: one orientation sample from the handheld.
// The answer carries the resulting servo angles; status 210 tells the
// reporter that a servo is at its limit.
func (h *Handlers) HandleOrient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxOrientBody)
	var s orientation.Sample
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.count("invalid")
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.Validate(); err != nil {
		h.count("invalid")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Head == nil {
		http.Error(w, "head not configured", http.StatusServiceUnavailable)
		return
	}
	if h.Limiter != nil && !h.Limiter.Allow() {
		h.count("rate_limited")
		http.Error(w, "too many orientation updates", http.StatusTooManyRequests)
		return
	}

	debug.Sample(s.Alpha, s.Beta, s.Gamma)
	res, err := h.Head.Point(s)
	if err != nil {
		h.count("error")
		debug.Error(err)
		http.Error(w, "servo error", http.StatusInternalServerError)
		return
	}

	debug.Servo("pan", res.Pan, res.Limited)
	debug.Servo("tilt", res.Tilt, res.Limited)
	if h.Metrics != nil {
		h.Metrics.ServoAngle.WithLabelValues("pan").Set(float64(res.Pan))
		h.Metrics.ServoAngle.WithLabelValues("tilt").Set(float64(res.Tilt))
	}
	h.Broadcaster.BroadcastPose(res)

	status := http.StatusOK
	if res.Limited {
		status = StatusLimited
		h.count("limited")
	} else {
		h.count("ok")
	}
	debug.Request(r.Method, r.URL.Path, status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

// HandleStop handles GET /stop. The answer is sent before the stop function
// runs; later calls only get the answer.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	h.stopOnce.Do(func() {
		debug.Info("Stop requested by %s", r.RemoteAddr)
		h.Broadcaster.Broadcast("info", "Stopping")
		if h.Stop != nil {
			h.Stop()
		}
	})
}

// HandleConfig returns the browser reporter settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Client)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()
	if h.Metrics != nil {
		h.Metrics.StatusClients.Inc()
		defer h.Metrics.StatusClients.Dec()
	}

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleVideo handles GET /video as an MJPEG (multipart/x-mixed-replace) stream.
func (h *Handlers) HandleVideo(w http.ResponseWriter, r *http.Request) {
	if h.Frames == nil {
		http.Error(w, "video disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	frames, unsub := h.Frames.Subscribe()
	defer unsub()
	if h.Metrics != nil {
		h.Metrics.VideoClients.Inc()
		defer h.Metrics.VideoClients.Dec()
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	debug.Verbose("Video client %s connected", r.RemoteAddr)
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeFrame(mw, frame); err != nil {
				debug.Verbose("Video client %s gone: %v", r.RemoteAddr, err)
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(mw *multipart.Writer, frame []byte) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":   {"image/jpeg"},
		"Content-Length": {strconv.Itoa(len(frame))},
	})
	if err != nil {
		return err
	}
	if _, err := part.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// statusRecorder keeps the response status for request logging. It forwards
// Flush so that streaming handlers keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		debug.Verbose("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
