// Package bootstrap starts a session: it takes the first location fix, asks
// for sensor permissions and creates the user record.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/geo"
	"nuha.dev/ravevision/internal/location"
	"nuha.dev/ravevision/internal/orientation"
	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/user"
	"nuha.dev/ravevision/internal/util"
)

var (
	ErrInvalidRequest      = errors.New("invalid session request")
	ErrLocationUnavailable = errors.New("location unavailable")
)

type Request struct {
	DisplayName string `validate:"required,max=64"`
	GroupName   string `validate:"required,max=64"`
}

type Session struct {
	Identity    user.Identity
	Location    geo.Coordinate
	Permissions user.Permissions
	CreatedAt   string
}

func (s *Session) MarshalObject(e *log.Entry) {
	s.Identity.MarshalObject(e)
	e.Bool("orientation", s.Permissions.OrientationGranted).Bool("motion", s.Permissions.MotionGranted)
}

type Config struct {
	Store  store.Store
	Source location.Source
	// Orientation is the permission machine later used by the view. Nil
	// means no prompt is required.
	Orientation *orientation.Permission
	Motion      orientation.Permissioner
	Now         func() time.Time
}

type Bootstrap struct {
	*validator.Validate
	log    log.Logger
	config Config
}

func New(config *Config) *Bootstrap {
	b := &Bootstrap{Validate: validator.New(), config: *config}
	if b.config.Now == nil {
		b.config.Now = time.Now
	}
	if b.config.Orientation == nil {
		b.config.Orientation = orientation.NewPermission(nil)
	}
	b.log = log.DefaultLogger
	b.log.Context = log.NewContext(nil).Str("module", "bootstrap").Value()
	return b
}

func (b *Bootstrap) permissions(ctx context.Context) user.Permissions {
	var p user.Permissions
	var errs []string
	p.OrientationGranted = b.config.Orientation.Request(ctx, b.config.Now())
	if err := b.config.Orientation.Err(); err != nil {
		errs = append(errs, err.Error())
	}
	if b.config.Motion == nil {
		p.MotionGranted = true
	} else {
		g, err := b.config.Motion.RequestPermission(ctx)
		if err != nil {
			errs = append(errs, err.Error())
		}
		p.MotionGranted = err == nil && g != orientation.Refused
	}
	p.Error = strings.Join(errs, "; ")
	return p
}

// Run creates the user record. No record is written unless a first fix was
// obtained; denied sensors only degrade the session.
func (b *Bootstrap) Run(ctx context.Context, req Request) (*Session, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.GroupName = strings.TrimSpace(req.GroupName)
	if err := b.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	opts := location.DefaultOptions()
	lctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	fix, err := b.config.Source.Current(lctx, opts)
	cancel()
	if err != nil {
		b.log.Error().Err(err).Msg("initial location failed")
		return nil, fmt.Errorf("%w: %w", ErrLocationUnavailable, location.AsError(err))
	}

	perms := b.permissions(ctx)
	if !perms.OrientationGranted || !perms.MotionGranted {
		b.log.Warn().Bool("orientation", perms.OrientationGranted).Bool("motion", perms.MotionGranted).
			Str("error", perms.Error).Msg("sensor permission not granted, heading fixed to north")
	}

	now := util.Timestamp(b.config.Now())
	group := user.GroupKey(req.GroupName)
	key, err := b.config.Store.Push(ctx, store.Fields{
		user.FieldUsername:               req.DisplayName,
		user.FieldGroupName:              group,
		user.FieldLocation:               user.PublishedLocation{Coordinate: fix, LastUpdated: now},
		user.FieldOrientationPermissions: perms,
		user.FieldCreatedAt:              now,
	})
	if err != nil {
		return nil, fmt.Errorf("create user record: %w", err)
	}

	s := &Session{
		Identity:    user.NewIdentity(key, req.DisplayName, group),
		Location:    fix,
		Permissions: perms,
		CreatedAt:   now,
	}
	b.log.Info().EmbedObject(s).Msg("session created")
	return s, nil
}
