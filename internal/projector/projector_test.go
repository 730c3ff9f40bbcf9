package projector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"nuha.dev/ravevision/internal/orientation"
)

func heading(h, pitch float64) *orientation.Sample {
	return &orientation.Sample{HeadingDegrees: h, PitchDegrees: pitch}
}

func TestProjectCentered(t *testing.T) {
	p := New(0)
	for _, h := range []float64{0, 45, 90, 180, 270, 359.5} {
		pos, ok := p.Project(h, heading(h, 0))
		assert.True(t, ok)
		assert.Equal(t, 50.0, pos.X)
		assert.Equal(t, 50.0, pos.Y)
	}
}

func TestProjectEdges(t *testing.T) {
	p := New(DefaultFieldOfView)
	tests := []struct {
		name    string
		bearing float64
		visible bool
		x       float64
	}{
		{"left edge", 290, true, 0},
		{"right edge", 70, true, 100},
		{"just past right", 70.0001, false, 0},
		{"just past left", 289.9999, false, 0},
		{"behind", 180, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, ok := p.Project(tt.bearing, heading(0, 0))
			assert.Equal(t, tt.visible, ok)
			if ok {
				assert.InDelta(t, tt.x, pos.X, 1e-9)
			}
		})
	}
}

func TestProjectWrapsAroundNorth(t *testing.T) {
	p := New(DefaultFieldOfView)
	pos, ok := p.Project(10, heading(350, 0))
	assert.True(t, ok)
	assert.InDelta(t, 20, pos.Relative, 1e-9)

	pos, ok = p.Project(350, heading(10, 0))
	assert.True(t, ok)
	assert.InDelta(t, -20, pos.Relative, 1e-9)
}

func TestProjectPitchBand(t *testing.T) {
	p := New(DefaultFieldOfView)
	for _, pitch := range []float64{-1000, -120, 0, 30, 120, 1000} {
		pos, ok := p.Project(0, heading(0, pitch))
		assert.True(t, ok)
		assert.GreaterOrEqual(t, pos.Y, 10.0)
		assert.LessOrEqual(t, pos.Y, 90.0)
	}
	pos, _ := p.Project(0, heading(0, 30))
	assert.Equal(t, 40.0, pos.Y)
	pos, _ = p.Project(0, heading(0, 1000))
	assert.Equal(t, 10.0, pos.Y)
	pos, _ = p.Project(0, heading(0, -1000))
	assert.Equal(t, 90.0, pos.Y)
}

func TestProjectNilOrientation(t *testing.T) {
	p := New(DefaultFieldOfView)
	pos, ok := p.Project(0, nil)
	assert.True(t, ok)
	assert.Equal(t, 50.0, pos.X)
	_, ok = p.Project(90, nil)
	assert.False(t, ok)
}

func TestProjectNonFiniteAngles(t *testing.T) {
	p := New(DefaultFieldOfView)
	pos, ok := p.Project(0, heading(math.NaN(), math.Inf(1)))
	assert.True(t, ok)
	assert.Equal(t, 50.0, pos.X)
	assert.Equal(t, 50.0, pos.Y)

	_, ok = p.Project(90, heading(math.NaN(), 0))
	assert.False(t, ok)

	_, ok = p.Project(math.NaN(), heading(0, 0))
	assert.False(t, ok)
}

func TestNormalizeSigned(t *testing.T) {
	assert.Equal(t, 180.0, NormalizeSigned(180))
	assert.Equal(t, 180.0, NormalizeSigned(-180))
	assert.Equal(t, -90.0, NormalizeSigned(270))
	assert.Equal(t, 90.0, NormalizeSigned(-270))
	assert.Equal(t, 0.0, NormalizeSigned(720))
}
