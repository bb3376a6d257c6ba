package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/OrientGo/internal/config"
	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/hw/camera"
	"github.com/cjeanneret/OrientGo/internal/hw/gpio"
	"github.com/cjeanneret/OrientGo/internal/hw/servo"
	"github.com/cjeanneret/OrientGo/internal/logic/capture"
	"github.com/cjeanneret/OrientGo/internal/logic/motion"
	"github.com/cjeanneret/OrientGo/internal/metrics"
	"github.com/cjeanneret/OrientGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8000}
	flag.Var(webPort, "web", "override web server port; -web= for default 8000, -web 8443 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyFlags(cfg, webPort.port(), *debugLevel); err != nil {
		log.Fatalf("invalid flag: %v", err)
	}
	if err := cfg.ValidateHead(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("head: %v", err)
	}
}

// run drives the head until ctx ends or a client calls GET /stop.
// The servos are parked at the centre on the way out.
func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Errorf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize servos
	debug.Step(2, "Initializing servos")
	debug.PrintStruct("Servo config", cfg.Servos)
	pan, err := servo.New(gpioDriver, servo.Config{Name: "pan", Pin: cfg.Servos.PanPin})
	if err != nil {
		return err
	}
	tilt, err := servo.New(gpioDriver, servo.Config{Name: "tilt", Pin: cfg.Servos.TiltPin})
	if err != nil {
		return err
	}
	head := motion.NewController(pan, tilt)
	defer func() {
		if err := head.Center(); err != nil {
			debug.Errorf("centering head failed: %v", err)
		}
	}()

	reg := metrics.NewRegistry()
	m := metrics.NewHeadMetrics(reg)
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	defer debug.SetOutput(os.Stdout)

	deps := web.Deps{
		Head:        head,
		Broadcaster: broadcaster,
		Limiter:     newLimiter(cfg.Web.OrientRateHz),
		Stop:        web.StopFunc(stop),
		Metrics:     m,
		Client: web.ClientConfig{
			ThrottleMs:    cfg.Reporter.ThrottleMs,
			HapticPulseMs: int(cfg.HapticPulse() / time.Millisecond),
		},
	}

	// Initialize camera
	debug.Step(3, "Initializing camera")
	debug.Value("Camera type", cfg.Camera.Type)
	cam, err := camera.New(camera.Options{
		Type:   cfg.Camera.Type,
		Device: cfg.Camera.Device,
		Format: cfg.Camera.Format,
		Size:   cfg.Camera.Size,
		Frame:  cfg.FrameInterval(),
	})
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}

	var wg sync.WaitGroup
	if cam != nil {
		defer cam.Close()
		frames := web.NewFrameBroadcaster()
		frames.OnDrop = m.FramesDropped.Inc
		deps.Frames = frames

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := capture.NewStream(cam, frames).Run(ctx); err != nil {
				debug.Error(err)
				broadcaster.Broadcast("error", err.Error())
			}
		}()
	}

	debug.Step(4, "Starting web server")
	srv, err := web.NewServer(fmt.Sprintf(":%d", cfg.Web.Port), deps, reg)
	if err != nil {
		return err
	}
	if cfg.TLSEnabled() {
		srv.WithTLS(cfg.Web.TLSCert, cfg.Web.TLSKey)
	}

	err = srv.Run(ctx)
	stop()
	wg.Wait()
	debug.Info("Head stopped")
	return err
}

// newLimiter allows hz orientation updates per second with a one second
// burst. A zero rate disables limiting.
func newLimiter(hz float64) *rate.Limiter {
	if hz <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(hz), int(math.Ceil(hz)))
}

// applyFlags overrides config values with non-default CLI flags.
// port 0 and debugLevel -1 mean "keep the config value".
func applyFlags(cfg *config.Config, port, debugLevel int) error {
	if port > 0 {
		cfg.Web.Port = port
	}
	if debugLevel != -1 {
		if debugLevel < 0 || debugLevel > 4 {
			return fmt.Errorf("debug level must be between 0 and 4, got %d", debugLevel)
		}
		cfg.Defaults.DebugLevel = debugLevel
	}
	return nil
}

// webPortFlag implements flag.Value for -web: unset = config port, -web= → 8000, -web 8443 → 8443.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
