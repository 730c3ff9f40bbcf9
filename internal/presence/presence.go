// Package presence keeps this device's own record in the shared store live:
// online while tracking, the latest fix or fix error, and an offline marker on
// teardown or on a lost connection.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/geo"
	"nuha.dev/ravevision/internal/location"
	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/user"
	"nuha.dev/ravevision/internal/util"
)

type State int

const (
	Uninitialized State = iota
	Tracking
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Tracking:
		return "tracking"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

var (
	ErrStarted = errors.New("presence already started")
	ErrStopped = errors.New("presence stopped")
)

type Config struct {
	Store    store.Store
	Source   location.Source
	Identity user.Identity
	// Listener receives every successful fix after it is published.
	Listener       func(geo.Coordinate)
	Now            func() time.Time
	PublishTimeout time.Duration
}

type Channel struct {
	mu       sync.Mutex
	log      log.Logger
	store    store.Store
	source   location.Source
	id       user.Identity
	listener func(geo.Coordinate)
	now      func() time.Time
	timeout  time.Duration
	state    State
	watch    location.Watch
	last     *geo.Coordinate
	// fix publishes in flight, waited for before the offline write
	inflight sync.WaitGroup
}

func New(config *Config) *Channel {
	c := &Channel{store: config.Store, source: config.Source, id: config.Identity,
		listener: config.Listener, now: config.Now, timeout: config.PublishTimeout}
	if c.now == nil {
		c.now = time.Now
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	c.log = log.DefaultLogger
	c.log.Context = log.NewContext(nil).Str("module", "presence").Str("user_id", config.Identity.ID).Value()
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Last returns the last published fix.
func (c *Channel) Last() *geo.Coordinate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	l := *c.last
	return &l
}

// Start goes online, arms the offline trigger and begins watching location.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Tracking:
		return ErrStarted
	case Stopped:
		return ErrStopped
	}
	key := c.id.ID
	if err := c.store.Update(ctx, key, store.Fields{user.FieldOnline: true}); err != nil {
		return fmt.Errorf("publish online: %w", err)
	}
	err := c.store.OnDisconnect(ctx, key, store.Fields{
		user.FieldOnline:   false,
		user.FieldLastSeen: store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("arm disconnect trigger: %w", err)
	}
	w, err := c.source.Watch(location.DefaultOptions(), c)
	if err != nil {
		return fmt.Errorf("watch location: %w", err)
	}
	c.watch = w
	c.state = Tracking
	c.log.Info().EmbedObject(c.id).Msg("presence tracking started")
	return nil
}

// begin reports whether a publish may run and registers it as in flight.
func (c *Channel) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Tracking {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *Channel) publish(fields store.Fields) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.store.Update(ctx, c.id.ID, fields)
}

func (c *Channel) OnFix(fix geo.Coordinate) {
	if !c.begin() {
		return
	}
	defer c.inflight.Done()
	loc := user.PublishedLocation{Coordinate: fix, LastUpdated: util.Timestamp(c.now())}
	err := c.publish(store.Fields{user.FieldLocation: loc, user.FieldOnline: true})
	if err != nil {
		c.log.Error().Err(err).EmbedObject(fix).Msg("location publish failed")
	}
	c.mu.Lock()
	c.last = &fix
	c.mu.Unlock()
	if c.listener != nil {
		c.listener(fix)
	}
}

// OnError publishes the failure. The previous location and online flag stay.
func (c *Channel) OnError(lerr *location.Error) {
	if !c.begin() {
		return
	}
	defer c.inflight.Done()
	c.log.Warn().Int("code", lerr.Code).Str("message", lerr.Message).Msg("location fix failed")
	err := c.publish(store.Fields{user.FieldLocationError: user.LocationError{
		Code:      lerr.Code,
		Message:   lerr.Message,
		Timestamp: util.Timestamp(c.now()),
	}})
	if err != nil {
		c.log.Error().Err(err).Msg("location error publish failed")
	}
}

// Stop cancels the location watch and publishes the offline transition once.
// A failed publish is returned but not retried.
func (c *Channel) Stop() error {
	c.mu.Lock()
	prev := c.state
	c.state = Stopped
	w := c.watch
	c.watch = nil
	c.mu.Unlock()
	if prev != Tracking {
		return nil
	}

	w.Clear()
	c.inflight.Wait()
	err := c.publish(store.Fields{
		user.FieldOnline:   false,
		user.FieldLastSeen: util.Timestamp(c.now()),
	})
	if err != nil {
		c.log.Error().Err(err).Msg("offline publish failed")
		return fmt.Errorf("publish offline: %w", err)
	}
	c.log.Info().EmbedObject(c.id).Msg("presence stopped")
	return nil
}
