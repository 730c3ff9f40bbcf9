// Package memstore is an in-process implementation of the shared store. It
// keeps every record as a map of JSON fields and pushes the whole collection
// to subscribers after each write.
package memstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/util"
)

// Journal receives the full document of every record after it changes.
type Journal interface {
	Record(key string, doc json.RawMessage)
}

type Config struct {
	Journal Journal
	Now     func() time.Time
	KeyGen  func() string
}

type Store struct {
	// deliver serializes writes with their snapshot delivery so every
	// subscriber sees snapshots in write order.
	deliver  sync.Mutex
	mu       sync.Mutex
	log      log.Logger
	records  map[string]map[string]json.RawMessage
	docs     map[string]json.RawMessage
	subs     map[uint64]store.SnapshotFunc
	sub_seq  uint64
	sessions map[uint64]*Session
	sess_seq uint64
	def      *Session
	journal  Journal
	now      func() time.Time
	keygen   func() string
	closed   bool
}

func New(config *Config) *Store {
	s := &Store{}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "memstore").Value()
	s.records = make(map[string]map[string]json.RawMessage)
	s.docs = make(map[string]json.RawMessage)
	s.subs = make(map[uint64]store.SnapshotFunc)
	s.sessions = make(map[uint64]*Session)
	s.journal = config.Journal
	s.now = config.Now
	if s.now == nil {
		s.now = time.Now
	}
	s.keygen = config.KeyGen
	if s.keygen == nil {
		s.keygen = util.GenUUID
	}
	s.def = s.NewSession("local")
	// the local session is not a client connection
	delete(s.sessions, s.def.id)
	return s
}

// Load restores records, typically from a journal, without notifying
// subscribers or the journal.
func (s *Store) Load(records map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, doc := range records {
		fields := make(map[string]json.RawMessage)
		if err := json.Unmarshal(doc, &fields); err != nil {
			return err
		}
		s.records[key] = fields
		s.docs[key] = doc
	}
	s.log.Info().Int("records", len(records)).Msg("records restored")
	return nil
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, ".#$[]/")
}

func (s *Store) encode(fields store.Fields) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		switch {
		case v == nil:
			out[k] = nil
		case store.IsServerTimestamp(v):
			b, _ := json.Marshal(util.Timestamp(s.now()))
			out[k] = b
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			if string(b) == "null" {
				b = nil
			}
			out[k] = b
		}
	}
	return out, nil
}

func (s *Store) snapshotLocked() store.Snapshot {
	snap := make(store.Snapshot, len(s.docs))
	for k, v := range s.docs {
		snap[k] = v
	}
	return snap
}

func (s *Store) subscribersLocked() []store.SnapshotFunc {
	fns := make([]store.SnapshotFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func (s *Store) write(ctx context.Context, key string, fields store.Fields, replace bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return store.ErrInvalidKey
	}
	enc, err := s.encode(fields)
	if err != nil {
		return err
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	rec, ok := s.records[key]
	if !ok || replace {
		rec = make(map[string]json.RawMessage, len(enc))
		s.records[key] = rec
	}
	for k, v := range enc {
		if v == nil {
			delete(rec, k)
		} else {
			rec[k] = v
		}
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[key] = doc
	snap := s.snapshotLocked()
	fns := s.subscribersLocked()
	s.mu.Unlock()

	if s.journal != nil {
		s.journal.Record(key, doc)
	}
	for _, fn := range fns {
		fn(snap)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key string, fields store.Fields) error {
	return s.write(ctx, key, fields, false)
}

func (s *Store) Push(ctx context.Context, fields store.Fields) (string, error) {
	key := s.keygen()
	if err := s.write(ctx, key, fields, true); err != nil {
		return "", err
	}
	return key, nil
}

type subscription struct {
	s    *Store
	id   uint64
	once sync.Once
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.s.mu.Lock()
		delete(sub.s.subs, sub.id)
		sub.s.mu.Unlock()
	})
}

func (s *Store) Subscribe(ctx context.Context, fn store.SnapshotFunc) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	s.sub_seq++
	id := s.sub_seq
	s.subs[id] = fn
	snap := s.snapshotLocked()
	s.mu.Unlock()
	fn(snap)
	return &subscription{s: s, id: id}, nil
}

// OnDisconnect registers a trigger on the store's local session. It fires
// when the store is closed.
func (s *Store) OnDisconnect(ctx context.Context, key string, fields store.Fields) error {
	return s.def.OnDisconnect(ctx, key, fields)
}

// Snapshot returns the current collection.
func (s *Store) Snapshot() store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Sessions is the number of open client sessions.
func (s *Store) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close fires the triggers of every open session and rejects further writes.
func (s *Store) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	sessions = append(sessions, s.def)
	for _, sess := range sessions {
		sess.Close()
	}
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[uint64]store.SnapshotFunc)
	s.mu.Unlock()
}
