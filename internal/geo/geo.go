// Package geo holds the spherical-earth math used to place peers relative to
// the viewer.
package geo

import "math"

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371e3

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// DistanceMeters returns the haversine great-circle distance between a and b.
func DistanceMeters(a, b Coordinate) float64 {
	if a.Equal(b) {
		return 0
	}
	phi1 := toRad(a.Latitude)
	phi2 := toRad(b.Latitude)
	dphi := toRad(b.Latitude - a.Latitude)
	dlambda := toRad(b.Longitude - a.Longitude)

	sdphi := math.Sin(dphi / 2)
	sdlambda := math.Sin(dlambda / 2)
	h := sdphi*sdphi + math.Cos(phi1)*math.Cos(phi2)*sdlambda*sdlambda
	// rounding can push h slightly outside [0,1] near antipodes
	h = clamp(h, 0, 1)
	return EarthRadius * 2 * math.Asin(math.Sqrt(h))
}

// InitialBearingDegrees returns the forward azimuth from a to b in [0,360).
func InitialBearingDegrees(a, b Coordinate) float64 {
	phi1 := toRad(a.Latitude)
	phi2 := toRad(b.Latitude)
	dlambda := toRad(b.Longitude - a.Longitude)

	y := math.Sin(dlambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dlambda)
	return normalize360(toDeg(math.Atan2(y, x)))
}

func normalize360(deg float64) float64 {
	d := math.Mod(deg+360, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// Destination returns the point reached from a after travelling distance
// meters along the great circle starting at bearing degrees.
func Destination(a Coordinate, bearing, distance float64) Coordinate {
	delta := distance / EarthRadius
	theta := toRad(bearing)
	phi1 := toRad(a.Latitude)
	lambda1 := toRad(a.Longitude)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(clamp(sinPhi2, -1, 1))
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*math.Sin(phi2)
	lambda2 := lambda1 + math.Atan2(y, x)

	out := a
	out.Latitude = toDeg(phi2)
	// wrap to [-180,180)
	out.Longitude = math.Mod(toDeg(lambda2)+540, 360) - 180
	return out
}
