package memstore

import (
	"context"
	"sync"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/store"
)

type trigger struct {
	key    string
	fields store.Fields
}

// Session is one client connection to the store. Its on-disconnect triggers
// fire when it is closed, however the connection ended.
type Session struct {
	s        *Store
	id       uint64
	name     string
	mu       sync.Mutex
	triggers []trigger
	subs     []store.Subscription
	closed   bool
}

func (s *Store) NewSession(name string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess_seq++
	sess := &Session{s: s, id: s.sess_seq, name: name}
	s.sessions[sess.id] = sess
	return sess
}

func (sess *Session) MarshalObject(e *log.Entry) {
	e.Uint64("session", sess.id).Str("session_name", sess.name)
}

func (sess *Session) Update(ctx context.Context, key string, fields store.Fields) error {
	return sess.s.Update(ctx, key, fields)
}

func (sess *Session) Push(ctx context.Context, fields store.Fields) (string, error) {
	return sess.s.Push(ctx, fields)
}

// Subscribe is tied to the session: closing the session unsubscribes it.
func (sess *Session) Subscribe(ctx context.Context, fn store.SnapshotFunc) (store.Subscription, error) {
	sub, err := sess.s.Subscribe(ctx, fn)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		sub.Unsubscribe()
		return nil, store.ErrClosed
	}
	sess.subs = append(sess.subs, sub)
	sess.mu.Unlock()
	return sub, nil
}

func (sess *Session) OnDisconnect(ctx context.Context, key string, fields store.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return store.ErrInvalidKey
	}
	cp := make(store.Fields, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return store.ErrClosed
	}
	sess.triggers = append(sess.triggers, trigger{key: key, fields: cp})
	return nil
}

// Triggers returns the number of armed triggers.
func (sess *Session) Triggers() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.triggers)
}

// Close unsubscribes the session and applies its triggers in registration
// order. It is safe to call more than once.
func (sess *Session) Close() {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	triggers := sess.triggers
	subs := sess.subs
	sess.triggers = nil
	sess.subs = nil
	sess.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	for _, t := range triggers {
		err := sess.s.Update(context.Background(), t.key, t.fields)
		if err != nil {
			sess.s.log.Error().Err(err).EmbedObject(sess).Str("key", t.key).Msg("on-disconnect update failed")
		} else {
			sess.s.log.Debug().EmbedObject(sess).Str("key", t.key).Msg("on-disconnect update applied")
		}
	}
	sess.s.mu.Lock()
	delete(sess.s.sessions, sess.id)
	sess.s.mu.Unlock()
}
