package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/OrientGo/internal/config"
	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/hw/gpio"
	"github.com/cjeanneret/OrientGo/internal/hw/haptic"
	"github.com/cjeanneret/OrientGo/internal/metrics"
	"github.com/cjeanneret/OrientGo/internal/orientation"
	"github.com/cjeanneret/OrientGo/internal/reporter"
)

// errNotSubscribed is returned when the orientation source is unavailable.
// The reason has already been shown on the diagnostic panel.
var errNotSubscribed = errors.New("orientation events unavailable")

// options holds the reporter CLI flags.
type options struct {
	endpoint   string
	throttleMs int
	debugLevel int
	stop       bool // send GET /stop and exit
	stopOnExit bool // send GET /stop on shutdown
}

func main() {
	var opts options
	cfgPath := flag.String("config", filepath.Join("configs", "reporter.yaml"), "path to config file")
	flag.StringVar(&opts.endpoint, "endpoint", "", "override head base URL, e.g. https://panhead.local:8443")
	flag.IntVar(&opts.throttleMs, "throttle_ms", -1, "override minimum time between posts in ms")
	flag.IntVar(&opts.debugLevel, "debug", -1, "override debug level (0-4)")
	flag.BoolVar(&opts.stop, "stop", false, "ask the head to stop and exit")
	flag.BoolVar(&opts.stopOnExit, "stop_on_exit", false, "ask the head to stop when the reporter exits")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyFlags(cfg, opts); err != nil {
		log.Fatalf("invalid flag: %v", err)
	}
	if err := cfg.ValidateReporter(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Endpoint", cfg.Reporter.Endpoint)
	debug.Value("Throttle", cfg.ThrottleInterval())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, reporter.NewPanel(os.Stderr)); err != nil {
		log.Fatalf("reporter: %v", err)
	}
}

// run forwards orientation events until ctx ends or a replay runs out.
func run(ctx context.Context, cfg *config.Config, opts options, panel *reporter.Panel) error {
	debug.Step(1, "Configuring transport")
	client, err := reporter.NewHTTPClient(reporter.TransportOptions{
		CAFile:             cfg.Reporter.CAFile,
		InsecureSkipVerify: cfg.Reporter.InsecureSkipVerify,
		Timeout:            cfg.RequestTimeout(),
	})
	if err != nil {
		return err
	}

	var m *metrics.ReporterMetrics
	if cfg.Reporter.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		m = metrics.NewReporterMetrics(reg)
		go serveMetrics(ctx, cfg.Reporter.MetricsAddr, reg)
	}

	debug.Step(2, "Initializing haptic feedback")
	hp, closeHaptic, err := newHaptic(cfg)
	if err != nil {
		return err
	}
	defer closeHaptic()

	debug.Step(3, "Opening orientation source")
	src, closer, err := orientation.New(orientation.Options{
		Type:     cfg.Reporter.Source,
		Path:     cfg.Reporter.ReplayPath,
		Interval: cfg.SourceInterval(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	r, err := reporter.New(src, reporter.Options{
		Endpoint:    cfg.Reporter.Endpoint,
		Throttle:    cfg.ThrottleInterval(),
		HapticPulse: cfg.HapticPulse(),
		Client:      client,
		Haptic:      hp,
		Diagnostics: panel,
		Metrics:     m,
	})
	if err != nil {
		return err
	}

	if opts.stop {
		r.Stop(ctx)
		waitInflight(r, cfg.RequestTimeout())
		return nil
	}

	debug.Step(4, "Subscribing to orientation events")
	r.Initialize(ctx)
	if !r.Subscribed() {
		return errNotSubscribed
	}

	var finished <-chan struct{}
	if d, ok := src.(interface{ Done() <-chan struct{} }); ok {
		finished = d.Done()
	}
	select {
	case <-ctx.Done():
		debug.Info("Shutting down")
	case <-finished:
		debug.Info("Replay finished")
	}

	if opts.stopOnExit {
		r.Stop(ctx)
	}
	waitInflight(r, cfg.RequestTimeout())
	return nil
}

// newHaptic opens the GPIO driver only when a vibration motor is wired.
func newHaptic(cfg *config.Config) (haptic.Haptic, func(), error) {
	if cfg.Haptic.Type != "gpio" {
		return haptic.Unsupported{}, func() {}, nil
	}
	g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, nil, fmt.Errorf("init GPIO: %w", err)
	}
	hp, err := haptic.New(cfg.Haptic.Type, g, cfg.Haptic.Pin)
	if err != nil {
		g.Close()
		return nil, nil, err
	}
	return hp, func() {
		if err := g.Close(); err != nil {
			debug.Errorf("closing GPIO driver failed: %v", err)
		}
	}, nil
}

// waitInflight waits for pending requests, at most timeout.
func waitInflight(r *reporter.Reporter, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		debug.Info("Gave up waiting for pending requests after %v", timeout)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	debug.Info("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		debug.Errorf("metrics server: %v", err)
	}
}

// applyFlags overrides config values with non-default CLI flags.
func applyFlags(cfg *config.Config, opts options) error {
	if opts.endpoint != "" {
		cfg.Reporter.Endpoint = opts.endpoint
	}
	if opts.throttleMs != -1 {
		if opts.throttleMs < 0 {
			return fmt.Errorf("throttle_ms must be >= 0, got %d", opts.throttleMs)
		}
		cfg.Reporter.ThrottleMs = opts.throttleMs
	}
	if opts.debugLevel != -1 {
		if opts.debugLevel < 0 || opts.debugLevel > 4 {
			return fmt.Errorf("debug level must be between 0 and 4, got %d", opts.debugLevel)
		}
		cfg.Defaults.DebugLevel = opts.debugLevel
	}
	return nil
}
