// Package marker derives the renderable view model of each peer from the
// current presence records, own location and own orientation.
package marker

import (
	"time"

	"nuha.dev/ravevision/internal/geo"
	"nuha.dev/ravevision/internal/orientation"
	"nuha.dev/ravevision/internal/projector"
	"nuha.dev/ravevision/internal/user"
)

type Marker struct {
	PeerID         string  `json:"peer_id"`
	DisplayName    string  `json:"display_name"`
	ScreenX        float64 `json:"x"`
	ScreenY        float64 `json:"y"`
	Visible        bool    `json:"visible"`
	DistanceMeters float64 `json:"distance_m"`
	DistanceLabel  string  `json:"distance"`
	Color          Color   `json:"color"`
	Online         bool    `json:"online"`
	LastSeenLabel  string  `json:"last_seen,omitempty"`
}

type Model struct {
	proj    *projector.Projector
	palette *Palette
	now     func() time.Time
}

type ModelConfig struct {
	FieldOfView float64
	Palette     *Palette
	Now         func() time.Time
}

func NewModel(config *ModelConfig) *Model {
	m := &Model{proj: projector.New(config.FieldOfView), palette: config.Palette, now: config.Now}
	if m.palette == nil {
		m.palette = NewPalette(nil)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Model) Palette() *Palette {
	return m.palette
}

// Build returns the marker for peer. ok is false when nothing should be drawn:
// either location is unknown or the peer is outside the field of view.
func (m *Model) Build(own *geo.Coordinate, o *orientation.Sample, peer user.PresenceRecord) (Marker, bool) {
	if own == nil || peer.Location == nil {
		return Marker{}, false
	}
	dist := geo.DistanceMeters(*own, *peer.Location)
	bearing := geo.InitialBearingDegrees(*own, *peer.Location)
	pos, visible := m.proj.Project(bearing, o)
	if !visible {
		return Marker{PeerID: peer.ID, DistanceMeters: dist}, false
	}
	mk := Marker{
		PeerID:         peer.ID,
		DisplayName:    peer.DisplayName,
		ScreenX:        pos.X,
		ScreenY:        pos.Y,
		Visible:        true,
		DistanceMeters: dist,
		DistanceLabel:  FormatDistance(dist),
		Color:          m.palette.Color(peer.ID, peer.DisplayName),
		Online:         peer.Online,
	}
	if !peer.Online {
		mk.LastSeenLabel = FormatLastSeen(peer.LastSeen, m.now())
	}
	return mk, true
}

// BuildAll returns the visible markers of peers, in roster order, and drops
// palette entries of peers no longer present.
func (m *Model) BuildAll(own *geo.Coordinate, o *orientation.Sample, peers []user.PresenceRecord) []Marker {
	ids := make(map[string]struct{}, len(peers))
	out := make([]Marker, 0, len(peers))
	for _, p := range peers {
		ids[p.ID] = struct{}{}
		if mk, ok := m.Build(own, o, p); ok {
			out = append(out, mk)
		}
	}
	m.palette.Retain(ids)
	return out
}
