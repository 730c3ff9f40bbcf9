package orientation

import (
	"math"
	"sync"
	"time"
)

// Simulated is a sensor that turns in place at a constant rate.
type Simulated struct {
	Interval       time.Duration
	StartHeading   float64
	DegreesPerTick float64
	Pitch          float64
}

type simSub struct {
	once sync.Once
	done chan struct{}
}

func (s *simSub) Unsubscribe() {
	s.once.Do(func() { close(s.done) })
}

func (s *Simulated) Subscribe(fn func(Reading)) (Subscription, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	sub := &simSub{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		heading := s.StartHeading
		for {
			select {
			case <-sub.done:
				return
			case <-ticker.C:
				alpha := math.Mod(heading, 360)
				if alpha < 0 {
					alpha += 360
				}
				beta := s.Pitch
				fn(Reading{Alpha: &alpha, Beta: &beta, Absolute: true})
				heading += s.DegreesPerTick
			}
		}
	}()
	return sub, nil
}
