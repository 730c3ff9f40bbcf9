// Package wsstore implements the shared store capability over a websocket
// connection to the presence daemon.
package wsstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/web/protocol"
)

type Config struct {
	URL            string
	Token          string
	RequestTimeout time.Duration
	ReadLimit      int64
}

type Store struct {
	config Config
	c      *websocket.Conn
	log    log.Logger

	// deliver keeps snapshot fan-out ordered
	deliver    sync.Mutex
	mu         sync.Mutex
	seq        uint64
	pending    map[uint64]chan protocol.Frame
	subs       map[uint64]store.SnapshotFunc
	sub_seq    uint64
	subscribed bool
	last       store.Snapshot
	closed     bool
	err        error
	done       chan struct{}
	cancel     context.CancelFunc
}

// Dial connects and authenticates. It returns once the daemon has accepted
// the token.
func Dial(ctx context.Context, config Config) (*Store, error) {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.ReadLimit <= 0 {
		config.ReadLimit = 4 << 20
	}
	c, _, err := websocket.Dial(ctx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.URL, err)
	}
	c.SetReadLimit(config.ReadLimit)

	if err = wsjson.Write(ctx, c, protocol.Request{Op: protocol.OpAuth, Token: config.Token}); err != nil {
		c.Close(websocket.StatusInternalError, "")
		return nil, fmt.Errorf("auth: %w", err)
	}
	var ack protocol.Frame
	if err = wsjson.Read(ctx, c, &ack); err != nil {
		c.Close(websocket.StatusInternalError, "")
		return nil, fmt.Errorf("auth: %w", err)
	}
	if err = ack.Err(); err != nil {
		c.Close(websocket.StatusPolicyViolation, "")
		return nil, fmt.Errorf("auth: %w", err)
	}

	s := &Store{config: config, c: c}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "wsstore").Value()
	s.pending = make(map[uint64]chan protocol.Frame)
	s.subs = make(map[uint64]store.SnapshotFunc)
	s.done = make(chan struct{})
	rctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.readLoop(rctx)
	s.log.Info().Str("url", config.URL).Msg("connected")
	return s, nil
}

// Done is closed when the connection is gone.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Err returns why the connection ended.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

func (s *Store) readLoop(ctx context.Context) {
	for {
		var f protocol.Frame
		if err := wsjson.Read(ctx, s.c, &f); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Info().Msg("connection closed")
				s.fail(store.ErrClosed)
			default:
				s.log.Error().Err(err).Msg("connection lost")
				s.fail(fmt.Errorf("%w: %v", store.ErrClosed, err))
			}
			return
		}
		switch f.Op {
		case protocol.OpAck:
			s.mu.Lock()
			ch := s.pending[f.ID]
			delete(s.pending, f.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- f
			} else {
				s.log.Warn().Uint64("id", f.ID).Str("error", f.Error).Msg("unexpected ack")
			}
		case protocol.OpSnapshot:
			snap := f.Data
			if snap == nil {
				snap = store.Snapshot{}
			}
			s.deliver.Lock()
			s.mu.Lock()
			s.last = snap
			fns := make([]store.SnapshotFunc, 0, len(s.subs))
			for _, fn := range s.subs {
				fns = append(fns, fn)
			}
			s.mu.Unlock()
			for _, fn := range fns {
				fn(snap)
			}
			s.deliver.Unlock()
		default:
			s.log.Warn().Str("op", f.Op).Msg("unknown frame")
		}
	}
}

func (s *Store) request(ctx context.Context, req protocol.Request) (protocol.Frame, error) {
	ch := make(chan protocol.Frame, 1)
	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		return protocol.Frame{}, err
	}
	s.seq++
	req.ID = s.seq
	s.pending[req.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.c, req); err != nil {
		return protocol.Frame{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	select {
	case f := <-ch:
		return f, f.Err()
	case <-ctx.Done():
		return protocol.Frame{}, fmt.Errorf("%s: %w", req.Op, ctx.Err())
	case <-s.done:
		return protocol.Frame{}, s.Err()
	}
}

func (s *Store) Update(ctx context.Context, key string, fields store.Fields) error {
	_, err := s.request(ctx, protocol.Request{Op: protocol.OpUpdate, Key: key, Fields: fields})
	return err
}

func (s *Store) Push(ctx context.Context, fields store.Fields) (string, error) {
	f, err := s.request(ctx, protocol.Request{Op: protocol.OpPush, Fields: fields})
	if err != nil {
		return "", err
	}
	return f.Key, nil
}

func (s *Store) OnDisconnect(ctx context.Context, key string, fields store.Fields) error {
	_, err := s.request(ctx, protocol.Request{Op: protocol.OpOnDisconnect, Key: key, Fields: fields})
	return err
}

type subscription struct {
	s    *Store
	id   uint64
	once sync.Once
}

// Unsubscribe stops local delivery. The connection keeps its daemon-side
// subscription so later subscribers get the last snapshot at once.
func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.s.mu.Lock()
		delete(sub.s.subs, sub.id)
		sub.s.mu.Unlock()
	})
}

// Subscribe shares one daemon subscription between all local subscribers.
// The first one receives the daemon's initial snapshot, later ones the last
// snapshot received.
func (s *Store) Subscribe(ctx context.Context, fn store.SnapshotFunc) (store.Subscription, error) {
	s.deliver.Lock()
	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		s.deliver.Unlock()
		return nil, err
	}
	s.sub_seq++
	id := s.sub_seq
	s.subs[id] = fn
	first := !s.subscribed
	s.subscribed = true
	last := s.last
	s.mu.Unlock()

	if !first {
		if last != nil {
			fn(last)
		}
		s.deliver.Unlock()
		return &subscription{s: s, id: id}, nil
	}
	// the initial snapshot is delivered by the read loop, which needs deliver
	s.deliver.Unlock()
	if _, err := s.request(ctx, protocol.Request{Op: protocol.OpSubscribe}); err != nil {
		s.mu.Lock()
		delete(s.subs, id)
		s.subscribed = false
		s.mu.Unlock()
		return nil, err
	}
	return &subscription{s: s, id: id}, nil
}

// Close ends the connection normally. The daemon still fires this
// connection's on-disconnect triggers.
func (s *Store) Close() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	if err := s.c.Close(websocket.StatusNormalClosure, ""); err != nil {
		s.log.Debug().Err(err).Msg("close handshake")
	}
	s.cancel()
	<-s.done
	return nil
}
