package orientation

import (
	"errors"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// Subscription is a live sensor registration.
type Subscription interface {
	Unsubscribe()
}

// Sensor pushes readings to the callback given at registration.
type Sensor interface {
	Subscribe(fn func(Reading)) (Subscription, error)
}

var ErrNoSensor = errors.New("no orientation sensor")

// Tracker owns the sensor subscription and keeps the most recent sample.
type Tracker struct {
	mu       sync.Mutex
	log      log.Logger
	sensor   Sensor
	perm     *Permission
	sub      Subscription
	stopped  bool
	seq      uint64
	latest   *Sample
	listener func(Sample)
	now      func() time.Time
}

type TrackerConfig struct {
	Sensor     Sensor
	Permission *Permission
	// Listener is called from the sensor goroutine after every sample.
	Listener func(Sample)
	Now      func() time.Time
}

func NewTracker(config *TrackerConfig) *Tracker {
	t := &Tracker{sensor: config.Sensor, perm: config.Permission, listener: config.Listener, now: config.Now}
	if t.now == nil {
		t.now = time.Now
	}
	t.log = log.DefaultLogger
	t.log.Context = log.NewContext(nil).Str("module", "orientation").Value()
	return t
}

func (t *Tracker) Start() error {
	if t.sensor == nil {
		return ErrNoSensor
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return nil
	}
	sub, err := t.sensor.Subscribe(t.handle)
	if err != nil {
		return err
	}
	t.sub = sub
	t.stopped = false
	t.log.Info().Msg("orientation tracking started")
	return nil
}

func (t *Tracker) handle(r Reading) {
	s := FromReading(r)
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.seq++
	s.SampleSequence = t.seq
	s.CapturedAtEpochMs = t.now().UnixMilli()
	t.latest = &s
	first := t.seq == 1
	t.mu.Unlock()

	if first {
		t.log.Info().EmbedObject(s).Msg("first orientation event received")
	}
	if t.perm != nil {
		t.perm.Event()
	}
	if t.listener != nil {
		t.listener(s)
	}
}

// Latest returns the most recent sample, or nil before the first event.
func (t *Tracker) Latest() *Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil
	}
	s := *t.latest
	return &s
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.stopped = true
	t.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
		t.log.Info().Msg("orientation tracking stopped")
	}
}
