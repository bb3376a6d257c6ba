// Package gpio abstracts the Raspberry Pi pins used by the head (servo PWM)
// and the reporter (vibration motor).
package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/OrientGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates how a GPIO pin is driven.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case PWM:
		return "pwm"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Driver controls GPIO pins. RPiDriver talks to the hardware, MockDriver
// keeps pin state in memory for development on a PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetPWMFreq sets the PWM clock for pin (Hz). The pin must be in PWM mode.
	SetPWMFreq(pin int, freqHz int) error
	// WritePWM sets the duty cycle as dutyLen/cycleLen.
	WritePWM(pin int, dutyLen, cycleLen uint32) error
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// mockPin is the simulated state of one pin.
type mockPin struct {
	mode   PinMode
	level  Level
	freqHz int
	duty   [2]uint32 // dutyLen, cycleLen
}

// MockDriver simulates pins in memory with the same rules as RPiDriver:
// PWM calls need a pin set up in PWM mode, writes to an unknown pin make
// it an output.
type MockDriver struct {
	mu   sync.Mutex
	pins map[int]*mockPin
}

func NewMockDriver() *MockDriver {
	return &MockDriver{pins: make(map[int]*mockPin)}
}

func (m *MockDriver) pin(p int, mode PinMode) *mockPin {
	if m.pins == nil {
		m.pins = make(map[int]*mockPin)
	}
	st, ok := m.pins[p]
	if !ok {
		st = &mockPin{mode: mode}
		m.pins[p] = st
	}
	return st
}

func (m *MockDriver) pwmPin(p int) (*mockPin, error) {
	st, ok := m.pins[p]
	if !ok || st.mode != PWM {
		return nil, fmt.Errorf("pin %d is not set up for PWM", p)
	}
	return st, nil
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pin(pin, mode).mode = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pin(pin, Output).level = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	level := m.pin(pin, Input).level
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

func (m *MockDriver) SetPWMFreq(pin int, freqHz int) error {
	debug.GPIO("SetPWMFreq", pin, freqHz)
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.pwmPin(pin)
	if err != nil {
		return err
	}
	st.freqHz = freqHz
	return nil
}

func (m *MockDriver) WritePWM(pin int, dutyLen, cycleLen uint32) error {
	debug.GPIO("WritePWM", pin, debug.Fmt("%d/%d", dutyLen, cycleLen))
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.pwmPin(pin)
	if err != nil {
		return err
	}
	st.duty = [2]uint32{dutyLen, cycleLen}
	return nil
}

// Duty returns the last duty cycle written to pin.
func (m *MockDriver) Duty(pin int) (dutyLen, cycleLen uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.pins[pin]; ok {
		return st.duty[0], st.duty[1]
	}
	return 0, 0
}

// Close resets every pin to input, as RPiDriver does.
func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.pins {
		*st = mockPin{mode: Input}
	}
	return nil
}
