package location

import (
	"context"
	"sync"
	"time"

	"nuha.dev/ravevision/internal/geo"
)

// Walker is a simulated source moving along a fixed bearing.
type Walker struct {
	mu       sync.Mutex
	pos      geo.Coordinate
	bearing  float64
	speed    float64
	interval time.Duration
	failN    int
	denied   bool
	ticks    int
	now      func() time.Time
}

type WalkerConfig struct {
	Start    geo.Coordinate
	Bearing  float64
	Speed    float64 // meters per second
	Interval time.Duration
	// FailEvery makes every Nth fix an error. Zero disables it.
	FailEvery int
	// Denied makes every request fail with PermissionDenied.
	Denied bool
	Now    func() time.Time
}

func NewWalker(config *WalkerConfig) *Walker {
	w := &Walker{pos: config.Start, bearing: config.Bearing, speed: config.Speed,
		interval: config.Interval, failN: config.FailEvery, denied: config.Denied, now: config.Now}
	if w.interval <= 0 {
		w.interval = time.Second
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

func (w *Walker) fix() geo.Coordinate {
	c := w.pos
	c.Timestamp = w.now().UnixMilli()
	acc := 5.0
	c.Accuracy = &acc
	spd := w.speed
	c.Speed = &spd
	hdg := w.bearing
	c.Heading = &hdg
	return c
}

func (w *Walker) Current(ctx context.Context, opts Options) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	if w.denied {
		return geo.Coordinate{}, &Error{Code: PermissionDenied, Message: "user denied geolocation"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fix(), nil
}

// step advances the walker by one interval and reports the outcome.
func (w *Walker) step() (geo.Coordinate, *Error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.denied {
		return geo.Coordinate{}, &Error{Code: PermissionDenied, Message: "user denied geolocation"}
	}
	w.ticks++
	w.pos = geo.Destination(w.pos, w.bearing, w.speed*w.interval.Seconds())
	if w.failN > 0 && w.ticks%w.failN == 0 {
		return geo.Coordinate{}, &Error{Code: PositionUnavailable, Message: "simulated signal loss"}
	}
	return w.fix(), nil
}

type walkerWatch struct {
	once sync.Once
	done chan struct{}
}

func (ww *walkerWatch) Clear() {
	ww.once.Do(func() { close(ww.done) })
}

func (w *Walker) Watch(opts Options, h Handler) (Watch, error) {
	ww := &walkerWatch{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ww.done:
				return
			case <-ticker.C:
				c, err := w.step()
				if err != nil {
					h.OnError(err)
				} else {
					h.OnFix(c)
				}
			}
		}
	}()
	return ww, nil
}
