// Package haptic drives the vibration feedback of the handheld reporter.
package haptic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/OrientGo/internal/debug"
	"github.com/cjeanneret/OrientGo/internal/hw/gpio"
)

// ErrUnsupported is returned when the device has no haptic actuator.
var ErrUnsupported = errors.New("haptic feedback is not supported on this device")

// Haptic is a device able to produce a vibration pulse.
type Haptic interface {
	Vibrate(d time.Duration) error
}

// Unsupported is the Haptic of a device without a vibration motor.
type Unsupported struct{}

func (Unsupported) Vibrate(time.Duration) error { return ErrUnsupported }

// GPIOMotor is a coin vibration motor switched by a transistor on a GPIO pin:
// the motor spins while the pin is HIGH.
type GPIOMotor struct {
	gpio gpio.Driver
	pin  int

	mu sync.Mutex // one pulse at a time
}

// NewGPIOMotor configures pin as an output held LOW (motor off).
func NewGPIOMotor(g gpio.Driver, pin int) (*GPIOMotor, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("invalid haptic pin %d", pin)
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup haptic pin: %w", err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("reset haptic pin: %w", err)
	}
	return &GPIOMotor{gpio: g, pin: pin}, nil
}

// Vibrate runs the motor for d and blocks until it is off again.
func (m *GPIOMotor) Vibrate(d time.Duration) error {
	if d <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	debug.Verbose("Haptic: pulse %v on pin %d", d, m.pin)
	if err := m.gpio.WritePin(m.pin, gpio.High); err != nil {
		return fmt.Errorf("start vibration: %w", err)
	}
	time.Sleep(d)
	if err := m.gpio.WritePin(m.pin, gpio.Low); err != nil {
		return fmt.Errorf("stop vibration: %w", err)
	}
	return nil
}

// New selects a Haptic implementation by type name ("gpio" or "none").
func New(kind string, g gpio.Driver, pin int) (Haptic, error) {
	switch kind {
	case "", "none":
		return Unsupported{}, nil
	case "gpio":
		return NewGPIOMotor(g, pin)
	default:
		return nil, fmt.Errorf("unsupported haptic type: %s", kind)
	}
}
