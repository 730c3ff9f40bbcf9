// Package orientation tracks the device compass/tilt stream and the permission
// needed to receive it.
package orientation

import (
	"math"

	"github.com/phuslu/log"
)

// Reading is one raw event from a sensor. Absent angles are nil.
type Reading struct {
	Alpha    *float64
	Beta     *float64
	Gamma    *float64
	Absolute bool
}

// Sample is the latest orientation of the device. It is replaced wholesale on
// every reading.
type Sample struct {
	HeadingDegrees    float64 `json:"heading"`
	PitchDegrees      float64 `json:"pitch"`
	RollDegrees       float64 `json:"roll"`
	IsAbsolute        bool    `json:"absolute"`
	SampleSequence    uint64  `json:"sequence"`
	CapturedAtEpochMs int64   `json:"captured_at"`
}

func orZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

// FromReading converts a raw reading, defaulting absent or non-finite angles
// to 0.
func FromReading(r Reading) Sample {
	return Sample{
		HeadingDegrees: orZero(r.Alpha),
		PitchDegrees:   orZero(r.Beta),
		RollDegrees:    orZero(r.Gamma),
		IsAbsolute:     r.Absolute,
	}
}

func (s Sample) MarshalObject(e *log.Entry) {
	e.Float64("heading", s.HeadingDegrees).Float64("pitch", s.PitchDegrees).Uint64("seq", s.SampleSequence)
}
