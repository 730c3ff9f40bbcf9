// Package arview is the camera view event loop. It owns the presence channel,
// the roster and the orientation tracker, keeps the latest value of each
// input and renders a frame whenever one of them changes.
package arview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/geo"
	"nuha.dev/ravevision/internal/location"
	"nuha.dev/ravevision/internal/marker"
	"nuha.dev/ravevision/internal/orientation"
	"nuha.dev/ravevision/internal/presence"
	"nuha.dev/ravevision/internal/roster"
	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/user"
)

// Frame is everything the rendering surface needs to draw one frame.
type Frame struct {
	Seq         uint64
	Markers     []marker.Marker
	Members     int
	Online      int
	Permission  orientation.State
	CanRetry    bool
	Location    *geo.Coordinate
	Orientation *orientation.Sample
}

type RenderFunc func(Frame)

type Config struct {
	Identity user.Identity
	// Location is the fix taken at bootstrap, shown until the first watch fix.
	Location   *geo.Coordinate
	Store      store.Store
	Source     location.Source
	Sensor     orientation.Sensor
	Permission *orientation.Permission
	Model      *marker.Model
	// Media is the camera capture, stopped on Close.
	Media  io.Closer
	Render RenderFunc
	Now    func() time.Time
	// Tick drives the permission deadline. Defaults to 250ms.
	Tick time.Duration
}

type View struct {
	log      log.Logger
	config   Config
	presence *presence.Channel
	roster   *roster.Roster
	tracker  *orientation.Tracker
	dirty    chan struct{}

	mu    sync.Mutex
	own   *geo.Coordinate
	peers []user.PresenceRecord
	seq   uint64
	state orientation.State

	closeOnce sync.Once
	closeErr  error
}

func New(config *Config) *View {
	v := &View{config: *config}
	if v.config.Now == nil {
		v.config.Now = time.Now
	}
	if v.config.Tick <= 0 {
		v.config.Tick = 250 * time.Millisecond
	}
	if v.config.Permission == nil {
		v.config.Permission = orientation.NewPermission(nil)
	}
	if v.config.Model == nil {
		v.config.Model = marker.NewModel(&marker.ModelConfig{Now: v.config.Now})
	}
	v.log = log.DefaultLogger
	v.log.Context = log.NewContext(nil).Str("module", "arview").Str("user_id", config.Identity.ID).Value()
	v.dirty = make(chan struct{}, 1)
	if config.Location != nil {
		l := *config.Location
		v.own = &l
	}
	v.presence = presence.New(&presence.Config{
		Store:    config.Store,
		Source:   config.Source,
		Identity: config.Identity,
		Listener: v.onFix,
		Now:      v.config.Now,
	})
	v.roster = roster.New(config.Store, config.Identity)
	v.tracker = orientation.NewTracker(&orientation.TrackerConfig{
		Sensor:     config.Sensor,
		Permission: v.config.Permission,
		Listener:   v.onSample,
		Now:        v.config.Now,
	})
	return v
}

func (v *View) signal() {
	select {
	case v.dirty <- struct{}{}:
	default:
	}
}

func (v *View) onFix(c geo.Coordinate) {
	v.mu.Lock()
	v.own = &c
	v.mu.Unlock()
	v.signal()
}

func (v *View) onSample(orientation.Sample) {
	v.signal()
}

func (v *View) onPeers(peers []user.PresenceRecord) {
	v.mu.Lock()
	v.peers = peers
	v.mu.Unlock()
	v.signal()
}

// Presence exposes the channel for status checks.
func (v *View) Presence() *presence.Channel {
	return v.presence
}

// Run starts the inputs and renders until ctx is cancelled. Close must be
// called afterwards in every case.
func (v *View) Run(ctx context.Context) error {
	if err := v.presence.Start(ctx); err != nil {
		return fmt.Errorf("start presence: %w", err)
	}
	if err := v.roster.Start(ctx, v.onPeers); err != nil {
		return fmt.Errorf("start roster: %w", err)
	}
	if err := v.tracker.Start(); err != nil {
		// no sensor: heading stays north
		v.log.Warn().Err(err).Msg("orientation unavailable")
	}
	v.mu.Lock()
	v.state = v.config.Permission.State()
	v.mu.Unlock()

	ticker := time.NewTicker(v.config.Tick)
	defer ticker.Stop()
	v.Render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-v.dirty:
			v.Render()
		case <-ticker.C:
			st := v.config.Permission.Advance(v.config.Now())
			v.mu.Lock()
			changed := st != v.state
			v.state = st
			v.mu.Unlock()
			if changed {
				v.log.Info().Str("permission", st.String()).Msg("orientation permission changed")
				v.Render()
			}
		}
	}
}

// Frame builds the current frame from the latest value of every input.
func (v *View) Frame() Frame {
	v.mu.Lock()
	own := v.own
	peers := v.peers
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	o := v.tracker.Latest()
	f := Frame{
		Seq:         seq,
		Markers:     v.config.Model.BuildAll(own, o, peers),
		Members:     len(peers) + 1,
		Online:      1,
		Permission:  v.config.Permission.State(),
		CanRetry:    v.config.Permission.CanRetry(),
		Location:    own,
		Orientation: o,
	}
	for _, p := range peers {
		if p.Online {
			f.Online++
		}
	}
	return f
}

func (v *View) Render() {
	f := v.Frame()
	if v.config.Render != nil {
		v.config.Render(f)
	}
}

// RetryPermission asks for orientation access again when a retry is offered.
func (v *View) RetryPermission(ctx context.Context) bool {
	if !v.config.Permission.CanRetry() {
		return false
	}
	ok := v.config.Permission.Request(ctx, v.config.Now())
	v.signal()
	return ok
}

func step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	if err = fn(); err != nil {
		err = fmt.Errorf("%s: %w", name, err)
	}
	return err
}

// Close tears the view down. Every step runs even when an earlier one fails:
// location watch and offline publish, roster subscription, orientation
// subscription, media capture.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		var errs []error
		errs = append(errs, step("presence", v.presence.Stop))
		errs = append(errs, step("roster", func() error {
			v.roster.Stop()
			return nil
		}))
		errs = append(errs, step("orientation", func() error {
			v.tracker.Stop()
			return nil
		}))
		if v.config.Media != nil {
			errs = append(errs, step("media", v.config.Media.Close))
		}
		v.closeErr = errors.Join(errs...)
		if v.closeErr != nil {
			v.log.Error().Err(v.closeErr).Msg("teardown incomplete")
		} else {
			v.log.Info().Msg("view closed")
		}
	})
	return v.closeErr
}
