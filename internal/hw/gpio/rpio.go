package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/OrientGo/internal/debug"
)

// RPiDriver drives the Raspberry Pi pins through go-rpio (memory-mapped
// /dev/gpiomem, /dev/mem for PWM).
type RPiDriver struct {
	mu    sync.Mutex
	pins  map[int]rpio.Pin
	modes map[int]PinMode
}

// NewRPiRealDriver maps the GPIO registers. PWM needs /dev/mem, so servos
// require running as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:  make(map[int]rpio.Pin),
		modes: make(map[int]PinMode),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.setupLocked(pin, mode)
	return err
}

func (r *RPiDriver) setupLocked(pin int, mode PinMode) (rpio.Pin, error) {
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Mode(rpio.Pwm)
	default:
		return p, fmt.Errorf("unknown pin mode: %v", mode)
	}
	r.pins[pin] = p
	r.modes[pin] = mode
	return p, nil
}

// pinLocked returns pin, setting it up in mode on first use.
func (r *RPiDriver) pinLocked(pin int, mode PinMode) (rpio.Pin, error) {
	if p, ok := r.pins[pin]; ok {
		return p, nil
	}
	return r.setupLocked(pin, mode)
}

func (r *RPiDriver) pwmLocked(pin int) (rpio.Pin, error) {
	if r.modes[pin] != PWM {
		return 0, fmt.Errorf("pin %d is not set up for PWM", pin)
	}
	return r.pins[pin], nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pinLocked(pin, Output)
	if err != nil {
		return err
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pinLocked(pin, Input)
	if err != nil {
		return Low, err
	}
	level := Level(p.Read() == rpio.High)
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

func (r *RPiDriver) SetPWMFreq(pin int, freqHz int) error {
	debug.GPIO("SetPWMFreq", pin, freqHz)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pwmLocked(pin)
	if err != nil {
		return err
	}
	p.Freq(freqHz)
	return nil
}

func (r *RPiDriver) WritePWM(pin int, dutyLen, cycleLen uint32) error {
	debug.GPIO("WritePWM", pin, debug.Fmt("%d/%d", dutyLen, cycleLen))
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pwmLocked(pin)
	if err != nil {
		return err
	}
	p.DutyCycle(dutyLen, cycleLen)
	return nil
}

// Close stops PWM output, returns every used pin to input and unmaps the
// registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	r.mu.Lock()
	defer r.mu.Unlock()

	for pin, p := range r.pins {
		if r.modes[pin] == PWM {
			p.DutyCycle(0, 1)
		}
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	return rpio.Close()
}
