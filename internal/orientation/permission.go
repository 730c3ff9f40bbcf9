package orientation

import (
	"context"
	"sync"
	"time"
)

// State of the orientation permission flow.
type State int

const (
	Waiting State = iota
	Requesting
	GrantedNoEvents
	GrantedActive
	Denied
	Unsupported
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Requesting:
		return "requesting"
	case GrantedNoEvents:
		return "granted-no-events"
	case GrantedActive:
		return "granted-active"
	case Denied:
		return "denied"
	case Unsupported:
		return "unsupported"
	}
	return "unknown"
}

// Grant is the answer of a platform permission prompt.
type Grant int

const (
	Granted Grant = iota
	Refused
	// NotRequired means the platform has no prompt and events should just flow.
	NotRequired
)

// Permissioner asks the platform for sensor access.
type Permissioner interface {
	RequestPermission(ctx context.Context) (Grant, error)
}

// PermissionerFunc adapts a function to Permissioner.
type PermissionerFunc func(ctx context.Context) (Grant, error)

func (f PermissionerFunc) RequestPermission(ctx context.Context) (Grant, error) {
	return f(ctx)
}

// EventDeadline is how long a grant may go without events before a retry is
// offered.
const EventDeadline = time.Second

// Permission is the permission state machine. Time only moves through the
// now argument of Request, Event and Advance.
type Permission struct {
	mu          sync.Mutex
	p           Permissioner
	state       State
	err         error
	notRequired bool
	deadline    time.Time
	expired     bool
	events      uint64
}

func NewPermission(p Permissioner) *Permission {
	return &Permission{p: p, state: Waiting}
}

// Request prompts for permission. It returns whether orientation access is
// usable. Denial is not an error: it is reflected in the state.
func (m *Permission) Request(ctx context.Context, now time.Time) bool {
	m.mu.Lock()
	if m.state == Requesting || m.state == GrantedActive {
		active := m.state == GrantedActive
		m.mu.Unlock()
		return active
	}
	m.state = Requesting
	m.err = nil
	m.mu.Unlock()

	var g Grant
	var err error
	if m.p == nil {
		g = NotRequired
	} else {
		g, err = m.p.RequestPermission(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Requesting {
		// an event arrived while the prompt was open
		return m.state == GrantedActive
	}
	switch {
	case err != nil:
		m.state = Denied
		m.err = err
		return false
	case g == Refused:
		m.state = Denied
		return false
	}
	m.notRequired = g == NotRequired
	m.events = 0
	m.expired = false
	m.deadline = now.Add(EventDeadline)
	m.state = GrantedNoEvents
	return true
}

// Event records that a sensor event arrived.
func (m *Permission) Event() {
	m.mu.Lock()
	m.events++
	m.state = GrantedActive
	m.mu.Unlock()
}

// Advance applies timed transitions up to now.
func (m *Permission) Advance(now time.Time) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == GrantedNoEvents && !m.expired && !now.Before(m.deadline) {
		m.expired = true
		if m.notRequired {
			m.state = Unsupported
		}
	}
	return m.state
}

func (m *Permission) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the error of the last failed prompt, if any.
func (m *Permission) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// CanRetry reports whether a manual Request makes sense.
func (m *Permission) CanRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Waiting, Denied, Unsupported:
		return true
	case GrantedNoEvents:
		return m.expired
	}
	return false
}

// Deadline returns when the pending grant stops waiting for events.
func (m *Permission) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline, m.state == GrantedNoEvents && !m.expired
}
