// Package stat keeps recent websocket connection events and a per-minute
// count of request frames for the status endpoint.
package stat

import (
	"sync"
	"time"
)

type counter struct {
	base time.Time
	cnt  uint64
}

type time_event struct {
	list [10]time.Time
	idx  int
	mu   sync.Mutex
}

type Stat struct {
	connect    time_event
	disconnect time_event
	authfail   time_event
	mu         sync.Mutex
	buf        [60]counter
	phead      int
	dur        time.Duration
	created    time.Time
}

func (s *Stat) ConnectEv(t time.Time) {
	record(&s.connect, t)
}

func (s *Stat) DisconnectEv(t time.Time) {
	record(&s.disconnect, t)
}

func (s *Stat) AuthFailEv(t time.Time) {
	record(&s.authfail, t)
}

func record(l *time_event, t time.Time) {
	l.mu.Lock()
	l.list[l.idx] = t
	l.idx = l.idx + 1
	if l.idx == len(l.list) {
		l.idx = 0
	}
	l.mu.Unlock()
}

// recent returns the recorded events, newest first.
func (l *time_event) recent() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Time, 0, len(l.list))
	for i := 1; i <= len(l.list); i++ {
		t := l.list[(l.idx-i+len(l.list))%len(l.list)]
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}

func NewStat() *Stat {
	o := &Stat{}
	o.dur = time.Minute
	o.created = time.Now()
	return o
}

// CounterIncr adds amt to the bucket of t. Events older than the current
// bucket are dropped.
func (s *Stat) CounterIncr(amt uint64, t time.Time) {
	s.mu.Lock()
	f := t.Truncate(s.dur)
	last := s.buf[s.phead]
	if f.After(last.base) {
		if last.cnt != 0 {
			s.phead = s.phead + 1
			if s.phead == len(s.buf) {
				s.phead = 0
			}
		}
		s.buf[s.phead].base = f
		s.buf[s.phead].cnt = amt
	} else if f.Equal(last.base) {
		s.buf[s.phead].cnt += amt
	}
	s.mu.Unlock()
}

type Bucket struct {
	Start time.Time `json:"start"`
	Count uint64    `json:"count"`
}

type Report struct {
	Since        time.Time   `json:"since"`
	Connects     []time.Time `json:"recent_connects"`
	Disconnects  []time.Time `json:"recent_disconnects"`
	AuthFailures []time.Time `json:"recent_auth_failures"`
	Frames       []Bucket    `json:"frames_per_minute"`
}

func (s *Stat) Report() Report {
	r := Report{
		Since:        s.created,
		Connects:     s.connect.recent(),
		Disconnects:  s.disconnect.recent(),
		AuthFailures: s.authfail.recent(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(s.buf); i++ {
		c := s.buf[(s.phead-i+len(s.buf))%len(s.buf)]
		if c.cnt == 0 {
			break
		}
		r.Frames = append(r.Frames, Bucket{Start: c.base, Count: c.cnt})
	}
	return r
}
