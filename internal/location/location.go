// Package location defines the continuous location source the presence
// channel watches.
package location

import (
	"context"
	"fmt"
	"time"

	"nuha.dev/ravevision/internal/geo"
)

// Options mirror the geolocation watch policy.
type Options struct {
	HighAccuracy bool
	MaxCacheAge  time.Duration
	Timeout      time.Duration
}

// DefaultOptions is high accuracy, no cached fixes, 10s timeout.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, MaxCacheAge: 0, Timeout: 10 * time.Second}
}

const (
	PermissionDenied    = 1
	PositionUnavailable = 2
	Timeout             = 3
)

// Error is a failed fix.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("location error %d: %s", e.Code, e.Message)
}

// Handler receives the results of a watch. Calls come from the source's own
// goroutine.
type Handler interface {
	OnFix(c geo.Coordinate)
	OnError(err *Error)
}

// Watch is a running continuous subscription.
type Watch interface {
	Clear()
}

type Source interface {
	Current(ctx context.Context, opts Options) (geo.Coordinate, error)
	Watch(opts Options, h Handler) (Watch, error)
}

// AsError converts any error into a location Error, keeping existing codes.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if le, ok := err.(*Error); ok {
		return le
	}
	if err == context.DeadlineExceeded {
		return &Error{Code: Timeout, Message: err.Error()}
	}
	return &Error{Code: PositionUnavailable, Message: err.Error()}
}
