package geo

import (
	"github.com/phuslu/log"
)

// Coordinate is a position fix as produced by a location source. It is a
// snapshot and is never mutated after creation.
type Coordinate struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	// Timestamp is epoch milliseconds of the fix.
	Timestamp int64 `json:"timestamp"`
}

func NewCoordinate(lat, lon float64, ts int64) Coordinate {
	return Coordinate{Latitude: lat, Longitude: lon, Timestamp: ts}
}

func (c Coordinate) Equal(o Coordinate) bool {
	return c.Latitude == o.Latitude && c.Longitude == o.Longitude
}

func (c Coordinate) MarshalObject(e *log.Entry) {
	e.Float64("lat", c.Latitude).Float64("lon", c.Longitude).Int64("fix_ts", c.Timestamp)
	if c.Accuracy != nil {
		e.Float64("accuracy", *c.Accuracy)
	}
}

// Float returns a pointer to v, for the optional fields.
func Float(v float64) *float64 {
	return &v
}
