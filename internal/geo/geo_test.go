package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var pairs = []struct {
	name string
	a, b Coordinate
}{
	{"east", NewCoordinate(0, 0, 0), NewCoordinate(0, 0.001, 0)},
	{"north", NewCoordinate(-6.2, 106.8, 0), NewCoordinate(-6.1, 106.8, 0)},
	{"antipodal", NewCoordinate(0, 0, 0), NewCoordinate(0, 180, 0)},
	{"near antipodal", NewCoordinate(45, 10, 0), NewCoordinate(-45, -170, 0)},
	{"poles", NewCoordinate(90, 0, 0), NewCoordinate(-90, 0, 0)},
	{"tiny", NewCoordinate(51.5, -0.12, 0), NewCoordinate(51.5, -0.1200000001, 0)},
	{"dateline", NewCoordinate(10, 179.9, 0), NewCoordinate(10, -179.9, 0)},
}

func TestDistanceSymmetric(t *testing.T) {
	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			ab := DistanceMeters(p.a, p.b)
			ba := DistanceMeters(p.b, p.a)
			assert.False(t, math.IsNaN(ab))
			assert.InDelta(t, ab, ba, 1e-6)
			assert.Equal(t, 0.0, DistanceMeters(p.a, p.a))
			assert.Greater(t, ab, 0.0)
		})
	}
}

func TestDistanceKnownValues(t *testing.T) {
	assert.InDelta(t, 111.19, DistanceMeters(NewCoordinate(0, 0, 0), NewCoordinate(0, 0.001, 0)), 0.01)
	assert.InDelta(t, math.Pi*EarthRadius, DistanceMeters(NewCoordinate(0, 0, 0), NewCoordinate(0, 180, 0)), 1e-3)
}

func TestBearingRange(t *testing.T) {
	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			b := InitialBearingDegrees(p.a, p.b)
			assert.False(t, math.IsNaN(b))
			assert.GreaterOrEqual(t, b, 0.0)
			assert.Less(t, b, 360.0)
		})
	}
}

func TestBearingCardinal(t *testing.T) {
	origin := NewCoordinate(0, 0, 0)
	tests := []struct {
		name string
		to   Coordinate
		want float64
	}{
		{"north", NewCoordinate(1, 0, 0), 0},
		{"east", NewCoordinate(0, 0.001, 0), 90},
		{"south", NewCoordinate(-1, 0, 0), 180},
		{"west", NewCoordinate(0, -1, 0), 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, InitialBearingDegrees(origin, tt.to), 1e-9)
		})
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	start := NewCoordinate(-6.2, 106.8, 0)
	end := Destination(start, 45, 1000)
	assert.InDelta(t, 1000, DistanceMeters(start, end), 1e-3)
	assert.InDelta(t, 45, InitialBearingDegrees(start, end), 1e-3)
	assert.Equal(t, start.Timestamp, end.Timestamp)
}
