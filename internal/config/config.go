package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjeanneret/OrientGo/internal/hw/servo"
	"gopkg.in/yaml.v3"
)

// ServosConfig holds the PWM pins of the pan/tilt head.
type ServosConfig struct {
	PanPin  int `yaml:"pan_pin"`  // BCM pin with hardware PWM (12, 13, 18, 19)
	TiltPin int `yaml:"tilt_pin"` // must be on the other PWM channel than PanPin
}

// HapticConfig describes the reporter's vibration motor.
type HapticConfig struct {
	Type    string `yaml:"type"`     // "gpio" or "none"
	Pin     int    `yaml:"pin"`      // GPIO pin switching the motor
	PulseMs int    `yaml:"pulse_ms"` // pulse length on status 210
}

// WebConfig holds the head's HTTP server settings.
type WebConfig struct {
	Port         int     `yaml:"port"`
	TLSCert      string  `yaml:"tls_cert"` // browsers only expose orientation over HTTPS
	TLSKey       string  `yaml:"tls_key"`
	OrientRateHz float64 `yaml:"orient_rate_hz"` // max accepted /orient per second; 0 = unlimited
}

// CameraConfig selects the video source of the head.
type CameraConfig struct {
	Type            string `yaml:"type"`   // "webcam", "mock" or "none"
	Device          string `yaml:"device"` // e.g., /dev/video0
	Format          string `yaml:"format"` // empty = first supported
	Size            string `yaml:"size"`   // "WxH", empty = largest
	FrameIntervalMs int    `yaml:"frame_interval_ms"`
}

// ReporterConfig holds the orientation reporter settings.
type ReporterConfig struct {
	Endpoint           string `yaml:"endpoint"`    // base URL of the head, e.g. https://panhead.local
	ThrottleMs         int    `yaml:"throttle_ms"` // minimum time between posts; 0 = no throttling
	Source             string `yaml:"source"`      // "mock", "replay", "stdin" or "none"
	ReplayPath         string `yaml:"replay_path"`
	SourceIntervalMs   int    `yaml:"source_interval_ms"`
	RequestTimeoutMs   int    `yaml:"request_timeout_ms"`
	CAFile             string `yaml:"ca_file"`              // CA for the head's certificate
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // accept the head's self-signed cert
	MetricsAddr        string `yaml:"metrics_addr"`         // e.g. ":9100"; empty = disabled
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Servos   ServosConfig   `yaml:"servos"`
	Haptic   HapticConfig   `yaml:"haptic"`
	Web      WebConfig      `yaml:"web"`
	Camera   CameraConfig   `yaml:"camera"`
	Reporter ReporterConfig `yaml:"reporter"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects config paths outside a configs/ directory,
// paths with parent traversal and files without the .yaml extension.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	// Servo defaults: original wiring on GPIO18 (PWM0) and GPIO19 (PWM1)
	if cfg.Servos.PanPin == 0 {
		cfg.Servos.PanPin = 18
	}
	if cfg.Servos.TiltPin == 0 {
		cfg.Servos.TiltPin = 19
	}

	if cfg.Haptic.Type == "" {
		cfg.Haptic.Type = "none"
	}
	if cfg.Haptic.PulseMs <= 0 {
		cfg.Haptic.PulseMs = 200
	}

	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8000
	}
	if cfg.Web.Port < 0 || cfg.Web.Port > 65535 {
		return nil, fmt.Errorf("web.port must be 1-65535, got %d", cfg.Web.Port)
	}
	if cfg.Web.OrientRateHz < 0 {
		return nil, fmt.Errorf("web.orient_rate_hz must be >= 0, got %g", cfg.Web.OrientRateHz)
	}

	if cfg.Camera.Type == "" {
		cfg.Camera.Type = "none"
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.FrameIntervalMs <= 0 {
		cfg.Camera.FrameIntervalMs = 100
	}

	if cfg.Reporter.ThrottleMs < 0 {
		return nil, fmt.Errorf("reporter.throttle_ms must be >= 0, got %d", cfg.Reporter.ThrottleMs)
	}
	if cfg.Reporter.Source == "" {
		cfg.Reporter.Source = "mock"
	}
	if cfg.Reporter.SourceIntervalMs <= 0 {
		cfg.Reporter.SourceIntervalMs = 50
	}
	if cfg.Reporter.RequestTimeoutMs <= 0 {
		cfg.Reporter.RequestTimeoutMs = 5000
	}

	return &cfg, nil
}

// ValidateHead checks the settings used by the pan/tilt head.
func (c *Config) ValidateHead() error {
	for name, pin := range map[string]int{"pan_pin": c.Servos.PanPin, "tilt_pin": c.Servos.TiltPin} {
		if !servo.IsPWMPin(pin) {
			return fmt.Errorf("servos.%s %d has no hardware PWM (use 12, 13, 18 or 19)", name, pin)
		}
	}
	if c.Servos.PanPin == c.Servos.TiltPin {
		return fmt.Errorf("servos.pan_pin and servos.tilt_pin must differ")
	}
	if servo.SameChannel(c.Servos.PanPin, c.Servos.TiltPin) {
		return fmt.Errorf("servos on pins %d and %d share a PWM channel", c.Servos.PanPin, c.Servos.TiltPin)
	}
	if (c.Web.TLSCert == "") != (c.Web.TLSKey == "") {
		return fmt.Errorf("web.tls_cert and web.tls_key must be set together")
	}
	switch c.Camera.Type {
	case "none", "mock", "webcam":
	default:
		return fmt.Errorf("unsupported camera.type: %s", c.Camera.Type)
	}
	return nil
}

// ValidateReporter checks the settings used by the orientation reporter.
func (c *Config) ValidateReporter() error {
	if c.Reporter.Endpoint == "" {
		return fmt.Errorf("reporter.endpoint is required")
	}
	u, err := url.Parse(c.Reporter.Endpoint)
	if err != nil {
		return fmt.Errorf("reporter.endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("reporter.endpoint must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("reporter.endpoint has no host")
	}
	switch c.Reporter.Source {
	case "mock", "stdin", "none":
	case "replay":
		if c.Reporter.ReplayPath == "" {
			return fmt.Errorf("reporter.replay_path is required for replay source")
		}
	default:
		return fmt.Errorf("unsupported reporter.source: %s", c.Reporter.Source)
	}
	switch c.Haptic.Type {
	case "none":
	case "gpio":
		if c.Haptic.Pin <= 0 {
			return fmt.Errorf("haptic.pin is required for gpio haptic")
		}
	default:
		return fmt.Errorf("unsupported haptic.type: %s", c.Haptic.Type)
	}
	return nil
}

// ThrottleInterval returns the minimum time between two forwarded samples.
func (c *Config) ThrottleInterval() time.Duration {
	return time.Duration(c.Reporter.ThrottleMs) * time.Millisecond
}

// SourceInterval returns the mock/replay event period.
func (c *Config) SourceInterval() time.Duration {
	return time.Duration(c.Reporter.SourceIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout of the reporter.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Reporter.RequestTimeoutMs) * time.Millisecond
}

// HapticPulse returns the vibration length used on status 210.
func (c *Config) HapticPulse() time.Duration {
	return time.Duration(c.Haptic.PulseMs) * time.Millisecond
}

// FrameInterval returns the mock camera frame period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Camera.FrameIntervalMs) * time.Millisecond
}

// TLSEnabled reports whether the head serves HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.Web.TLSCert != "" && c.Web.TLSKey != ""
}
