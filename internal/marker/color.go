package marker

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Color is an HSL color.
type Color struct {
	Hue        int `json:"h"`
	Saturation int `json:"s"`
	Lightness  int `json:"l"`
}

func (c Color) String() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.Hue, c.Saturation, c.Lightness)
}

type paletteEntry struct {
	name  string
	color Color
}

// Palette hands out a random color per peer and keeps it until the peer's
// display name changes or the peer leaves.
type Palette struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	entries map[string]paletteEntry
}

// NewPalette uses rnd for color generation. A nil rnd is seeded from the
// clock.
func NewPalette(rnd *rand.Rand) *Palette {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Palette{rnd: rnd, entries: make(map[string]paletteEntry)}
}

func (p *Palette) generate() Color {
	return Color{
		Hue:        p.rnd.Intn(360),
		Saturation: 70 + p.rnd.Intn(30),
		Lightness:  40 + p.rnd.Intn(20),
	}
}

func (p *Palette) Color(peerID, displayName string) Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[peerID]
	if ok && e.name == displayName {
		return e.color
	}
	e = paletteEntry{name: displayName, color: p.generate()}
	p.entries[peerID] = e
	return e.color
}

// Retain forgets every peer not in ids.
func (p *Palette) Retain(ids map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.entries {
		if _, ok := ids[id]; !ok {
			delete(p.entries, id)
		}
	}
}

func (p *Palette) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
