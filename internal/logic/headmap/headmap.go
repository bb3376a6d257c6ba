package headmap

import (
	"github.com/cjeanneret/OrientGo/internal/orientation"
)

// Angles is a pan/tilt target in whole degrees, before servo clamping.
type Angles struct {
	Pan  int
	Tilt int
}

// FromSample maps a handheld orientation to head angles.
//
// With gamma > 0 tilt follows gamma and pan mirrors alpha around 270°.
// Otherwise tilt is taken from the other side (180 + gamma) and pan mirrors
// alpha around 90°, unwrapped past alpha = 180° so it stays continuous.
// Angles are truncated toward zero.
func FromSample(s orientation.Sample) Angles {
	alpha := int(s.Alpha)
	gamma := int(s.Gamma)

	if s.Gamma > 0 {
		return Angles{Pan: 270 - alpha, Tilt: gamma}
	}
	if s.Alpha < 180 {
		return Angles{Pan: 90 - alpha, Tilt: 180 + gamma}
	}
	return Angles{Pan: 360 - alpha + 90, Tilt: 180 + gamma}
}
