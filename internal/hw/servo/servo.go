package servo

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/hw/gpio"
)

const (
	Freq   = 50   // PWM frequency, Hz
	Cycle  = 2000 // PWM cycle length (subdivisions of one period)
	Center = 90   // resting angle, degrees
	MinDeg = 0
	MaxDeg = 180
)

// Raspberry Pi pins with hardware PWM, mapped to their PWM channel.
var pwmChannel = map[int]int{
	12: 0,
	18: 0,
	13: 1,
	19: 1,
}

// IsPWMPin reports whether pin has hardware PWM.
func IsPWMPin(pin int) bool {
	_, ok := pwmChannel[pin]
	return ok
}

// SameChannel reports whether two PWM pins share a channel and therefore
// cannot drive two servos independently.
func SameChannel(a, b int) bool {
	ca, okA := pwmChannel[a]
	cb, okB := pwmChannel[b]
	return okA && okB && ca == cb
}

// Config holds the hardware configuration for a hobby servo.
type Config struct {
	Name string // "pan" or "tilt", used in logs
	Pin  int    // BCM pin with hardware PWM
}

// Servo drives a hobby servo through a PWM pin.
type Servo struct {
	gpio gpio.Driver
	cfg  Config

	mu    sync.Mutex
	angle int
}

// New configures pin for PWM and parks the servo at Center.
func New(g gpio.Driver, cfg Config) (*Servo, error) {
	if !IsPWMPin(cfg.Pin) {
		return nil, fmt.Errorf("pin %d has no hardware PWM (use 12, 13, 18 or 19)", cfg.Pin)
	}
	if err := g.SetupPin(cfg.Pin, gpio.PWM); err != nil {
		return nil, fmt.Errorf("setup %s servo pin: %w", cfg.Name, err)
	}
	if err := g.SetPWMFreq(cfg.Pin, Freq*Cycle); err != nil {
		return nil, fmt.Errorf("set %s servo frequency: %w", cfg.Name, err)
	}

	s := &Servo{gpio: g, cfg: cfg}
	if _, err := s.Set(Center); err != nil {
		return nil, err
	}
	return s, nil
}

// Set moves the servo to angle (0-180 degrees).
//
// Out-of-range angles are clamped; the returned bool is true when clamping
// happened.
func (s *Servo) Set(angle int) (bool, error) {
	limited := LimitAngle(&angle)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gpio.WritePWM(s.cfg.Pin, DutyCycle(angle), Cycle); err != nil {
		return limited, fmt.Errorf("drive %s servo: %w", s.cfg.Name, err)
	}
	s.angle = angle
	debug.Servo(s.cfg.Name, angle, limited)
	return limited, nil
}

// Angle returns the last commanded angle.
func (s *Servo) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// Name returns the servo label.
func (s *Servo) Name() string { return s.cfg.Name }

// DutyCycle converts an angle to a duty length out of Cycle:
// 0° -> 100 (1 ms), 180° -> 200 (2 ms) at 50 Hz.
func DutyCycle(angle int) uint32 {
	return uint32(float32(angle)/180.0*100.0 + 100.0)
}

// LimitAngle clamps angle to 0-180 degrees.
//
// Returns true if the angle was out of range.
func LimitAngle(angle *int) bool {
	if *angle < MinDeg {
		*angle = MinDeg
		return true
	}
	if *angle > MaxDeg {
		*angle = MaxDeg
		return true
	}
	return false
}
