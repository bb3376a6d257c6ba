package servo

import (
	"errors"
	"testing"

	"github.com/cjeanneret/OrientGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls   []gpioCall
	failPWM bool
	freqs   map[int]int
}

type gpioCall struct {
	op   string // "setup", "pwm"
	pin  int
	mode gpio.PinMode
	duty uint32
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin, mode: mode})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error { return nil }

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) { return gpio.Low, nil }

func (d *recordingDriver) SetPWMFreq(pin int, freqHz int) error {
	if d.freqs == nil {
		d.freqs = make(map[int]int)
	}
	d.freqs[pin] = freqHz
	return nil
}

func (d *recordingDriver) WritePWM(pin int, dutyLen, cycleLen uint32) error {
	if d.failPWM {
		return errors.New("pwm failure")
	}
	d.calls = append(d.calls, gpioCall{op: "pwm", pin: pin, duty: dutyLen})
	return nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) lastDuty() uint32 {
	for i := len(d.calls) - 1; i >= 0; i-- {
		if d.calls[i].op == "pwm" {
			return d.calls[i].duty
		}
	}
	return 0
}

func TestNew_SetsUpPWMAndCenters(t *testing.T) {
	drv := &recordingDriver{}
	s, err := New(drv, Config{Name: "pan", Pin: 18})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if len(drv.calls) == 0 || drv.calls[0].op != "setup" || drv.calls[0].mode != gpio.PWM {
		t.Fatalf("first call should set up PWM, got %+v", drv.calls)
	}
	if drv.freqs[18] != Freq*Cycle {
		t.Errorf("freq = %d, want %d", drv.freqs[18], Freq*Cycle)
	}
	if s.Angle() != Center {
		t.Errorf("Angle = %d, want %d", s.Angle(), Center)
	}
	if got := drv.lastDuty(); got != 150 {
		t.Errorf("center duty = %d, want 150", got)
	}
}

func TestNew_RejectsNonPWMPin(t *testing.T) {
	if _, err := New(&recordingDriver{}, Config{Name: "pan", Pin: 17}); err == nil {
		t.Error("expected error for non-PWM pin 17")
	}
}

func TestSet_ClampsAndReports(t *testing.T) {
	cases := []struct {
		name     string
		in       int
		want     int
		limited  bool
		wantDuty uint32
	}{
		{"min", 0, 0, false, 100},
		{"max", 180, 180, false, 200},
		{"mid", 45, 45, false, 125},
		{"below", -30, 0, true, 100},
		{"above", 270, 180, true, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drv := &recordingDriver{}
			s, err := New(drv, Config{Name: "tilt", Pin: 19})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			limited, err := s.Set(tc.in)
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			if limited != tc.limited {
				t.Errorf("limited = %v, want %v", limited, tc.limited)
			}
			if s.Angle() != tc.want {
				t.Errorf("Angle = %d, want %d", s.Angle(), tc.want)
			}
			if got := drv.lastDuty(); got != tc.wantDuty {
				t.Errorf("duty = %d, want %d", got, tc.wantDuty)
			}
		})
	}
}

func TestSet_PWMErrorKeepsPreviousAngle(t *testing.T) {
	drv := &recordingDriver{}
	s, err := New(drv, Config{Name: "pan", Pin: 12})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drv.failPWM = true

	if _, err := s.Set(10); err == nil {
		t.Fatal("expected error")
	}
	if s.Angle() != Center {
		t.Errorf("Angle = %d, want %d after failed write", s.Angle(), Center)
	}
}

func TestSameChannel(t *testing.T) {
	cases := []struct {
		a, b int
		want bool
	}{
		{12, 18, true},
		{13, 19, true},
		{18, 19, false},
		{12, 13, false},
		{17, 27, false},
	}
	for _, tc := range cases {
		if got := SameChannel(tc.a, tc.b); got != tc.want {
			t.Errorf("SameChannel(%d, %d) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLimitAngle(t *testing.T) {
	a := 181
	if !LimitAngle(&a) || a != 180 {
		t.Errorf("LimitAngle(181) -> %d", a)
	}
	a = -1
	if !LimitAngle(&a) || a != 0 {
		t.Errorf("LimitAngle(-1) -> %d", a)
	}
	a = 90
	if LimitAngle(&a) || a != 90 {
		t.Errorf("LimitAngle(90) -> %d", a)
	}
}
