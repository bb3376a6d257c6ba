// Package orientation models device-orientation readings and the sources
// that deliver them.
package orientation

import (
	"fmt"
	"math"
)

// Sample is one device-orientation reading, in degrees.
type Sample struct {
	Alpha float64 `json:"alpha"` // rotation around z, 0..360
	Beta  float64 `json:"beta"`  // front-back tilt around x, -180..180
	Gamma float64 `json:"gamma"` // left-right tilt around y, -90..90
}

// Validate checks that all angles are finite and within their ranges.
func (s Sample) Validate() error {
	for _, f := range []struct {
		name     string
		v        float64
		min, max float64
	}{
		{"alpha", s.Alpha, 0, 360},
		{"beta", s.Beta, -180, 180},
		{"gamma", s.Gamma, -90, 90},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be finite", f.name)
		}
		if f.v < f.min || f.v > f.max {
			return fmt.Errorf("%s must be between %g and %g, got %g", f.name, f.min, f.max, f.v)
		}
	}
	return nil
}
