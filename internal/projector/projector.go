// Package projector places a target bearing on the screen given the device
// orientation.
package projector

import (
	"math"

	"nuha.dev/ravevision/internal/orientation"
)

// DefaultFieldOfView is the half-angle in degrees. It is wider than a real
// camera so markers stay reachable by panning.
const DefaultFieldOfView = 70.0

const (
	minY         = 10.0
	maxY         = 90.0
	pitchDamping = 3.0
)

// Position is a screen position in percent of the viewport.
type Position struct {
	X float64
	Y float64
	// Relative is the bearing to the target relative to the heading.
	Relative float64
}

type Projector struct {
	fov float64
}

// New returns a projector. A non-positive fov means DefaultFieldOfView.
func New(fov float64) *Projector {
	if fov <= 0 || math.IsNaN(fov) {
		fov = DefaultFieldOfView
	}
	return &Projector{fov: fov}
}

func (p *Projector) FieldOfView() float64 {
	return p.fov
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// NormalizeSigned maps an angle into (-180, 180].
func NormalizeSigned(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Project returns the screen position of a target at bearing. ok is false
// when the target is outside the field of view and must not be drawn. A nil
// sample, like a non-finite angle, is treated as heading north with level
// pitch. A non-finite bearing is never drawn.
func (p *Projector) Project(bearing float64, o *orientation.Sample) (pos Position, ok bool) {
	var heading, pitch float64
	if o != nil {
		heading = finite(o.HeadingDegrees)
		pitch = finite(o.PitchDegrees)
	}
	rel := NormalizeSigned(bearing - heading)
	if math.IsNaN(rel) || math.Abs(rel) > p.fov {
		return Position{Relative: rel}, false
	}
	x := (rel + p.fov) / (2 * p.fov) * 100
	y := math.Max(minY, math.Min(maxY, 50-pitch/pitchDamping))
	return Position{X: x, Y: y, Relative: rel}, true
}
