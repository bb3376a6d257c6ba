package motion

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/OrientGo/internal/hw/servo"
	"github.com/cjeanneret/OrientGo/internal/logic/headmap"
	"github.com/cjeanneret/OrientGo/internal/orientation"
)

// Positioner is a single axis that can be driven to an angle.
type Positioner interface {
	Set(angle int) (bool, error)
	Angle() int
}

// Result is the outcome of pointing the head.
type Result struct {
	Pan     int  `json:"pan"`
	Tilt    int  `json:"tilt"`
	Limited bool `json:"limited"`
}

// Controller orchestrates the pan/tilt servos. It sits between the HTTP
// layer (orientation updates) and the hardware. Moves are serialised so
// concurrent requests never interleave their axes.
type Controller struct {
	mu   sync.Mutex
	pan  Positioner
	tilt Positioner
}

func NewController(pan, tilt Positioner) *Controller {
	return &Controller{
		pan:  pan,
		tilt: tilt,
	}
}

// Point maps a handheld orientation to the head and drives both servos.
// Both axes are always driven, even when the first one was clamped.
func (c *Controller) Point(s orientation.Sample) (Result, error) {
	target := headmap.FromSample(s)
	return c.MovePanTilt(target.Pan, target.Tilt)
}

// MovePanTilt drives both axes; Limited is true if either was clamped.
func (c *Controller) MovePanTilt(pan, tilt int) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	panLimited, panErr := c.pan.Set(pan)
	tiltLimited, tiltErr := c.tilt.Set(tilt)

	res := Result{
		Pan:     c.pan.Angle(),
		Tilt:    c.tilt.Angle(),
		Limited: panLimited || tiltLimited,
	}
	if err := errors.Join(panErr, tiltErr); err != nil {
		return res, fmt.Errorf("point head: %w", err)
	}
	return res, nil
}

// Center parks both servos at their resting angle.
func (c *Controller) Center() error {
	_, err := c.MovePanTilt(servo.Center, servo.Center)
	return err
}

// Position returns the last commanded angles.
func (c *Controller) Position() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Result{Pan: c.pan.Angle(), Tilt: c.tilt.Angle()}
}
