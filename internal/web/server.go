package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"

	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	certFile string
	keyFile  string
	handlers *Handlers
	registry *prometheus.Registry
}

// NewServer creates a server configured for the given address and dependencies.
// Prometheus metrics are served on /metrics when reg is not nil.
func NewServer(addr string, deps Deps, reg *prometheus.Registry) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("sub static fs: %w", err)
	}

	return &Server{
		addr:     addr,
		handlers: NewHandlers(deps, subFS),
		registry: reg,
	}, nil
}

// WithTLS makes Run serve HTTPS with the given certificate. Browsers only
// deliver device orientation to pages in a secure context.
func (s *Server) WithTLS(certFile, keyFile string) *Server {
	s.certFile = certFile
	s.keyFile = keyFile
	return s
}

// Handlers returns the handlers behind the routes.
func (s *Server) Handlers() *Handlers { return s.handlers }

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	r := mux.NewRouter()
	h := s.handlers

	r.HandleFunc("/orient", h.HandleOrient).Methods(http.MethodPost)
	r.HandleFunc("/stop", h.HandleStop).Methods(http.MethodGet)
	r.HandleFunc("/config", h.HandleConfig).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", h.HandleStatusStream).Methods(http.MethodGet)
	r.HandleFunc("/video", h.HandleVideo).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry)).Methods(http.MethodGet)
	}
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	r.HandleFunc("/", h.ServeIndex).Methods(http.MethodGet) // exact match for root only

	r.Use(logRequests)
	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// Open streams see their request context cancelled together with ctx.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	tls := s.certFile != ""
	if tls {
		if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
			return fmt.Errorf("configure http2: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if tls {
			debug.Info("web server listening on https://%s", s.addr)
			errCh <- srv.ListenAndServeTLS(s.certFile, s.keyFile)
			return
		}
		debug.Info("web server listening on http://%s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
