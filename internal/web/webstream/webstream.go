// Package webstream serves the shared store over websockets. Every connection
// is bound to one memstore session, so the session's on-disconnect triggers
// fire however the connection ends.
package webstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/store/impl/memstore"
	"nuha.dev/ravevision/internal/util"
	"nuha.dev/ravevision/internal/web/protocol"
	"nuha.dev/ravevision/internal/web/stat"
)

var errUnauthorized = errors.New("invalid token")

type WebstreamServer struct {
	log    log.Logger
	store  *memstore.Store
	stat   *stat.Stat
	config WebStreamConfig
	seq    uint64
	active int64
}

type WebStreamConfig struct {
	// TokenHash is the bcrypt hash of the shared client token. Empty accepts
	// every client.
	TokenHash    string
	AuthTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewWebstream(st *memstore.Store, config WebStreamConfig) *WebstreamServer {
	o := &WebstreamServer{config: config}
	if o.config.AuthTimeout <= 0 {
		o.config.AuthTimeout = 5 * time.Second
	}
	if o.config.WriteTimeout <= 0 {
		o.config.WriteTimeout = 10 * time.Second
	}
	o.log = log.DefaultLogger
	o.log.Context = log.NewContext(nil).Str("module", "websocket").Value()
	o.store = st
	o.stat = stat.NewStat()
	return o
}

// Connections is the number of authenticated connections.
func (ws *WebstreamServer) Connections() int {
	return int(atomic.LoadInt64(&ws.active))
}

func (ws *WebstreamServer) Stats() stat.Report {
	return ws.stat.Report()
}

func (ws *WebstreamServer) GetHandler() http.Handler {
	return http.HandlerFunc(ws.serve_http)
}

func (ws *WebstreamServer) validate_token(req *protocol.Request) error {
	if req.Op != protocol.OpAuth {
		return errUnauthorized
	}
	if ws.config.TokenHash == "" {
		return nil
	}
	if !util.CheckPwd(ws.config.TokenHash, req.Token) {
		return errUnauthorized
	}
	return nil
}

func (ws *WebstreamServer) serve_http(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		ws.log.Error().Err(err).Msg("Error while upgrading websocket")
		return
	}
	defer c.Close(websocket.StatusInternalError, "unhandled error")

	//read login info
	readCtx, cancel := context.WithTimeout(r.Context(), ws.config.AuthTimeout)
	var auth protocol.Request
	err = wsjson.Read(readCtx, c, &auth)
	cancel()
	if err != nil {
		ws.log.Error().Err(err).Msg("Error while reading auth token")
		return
	}
	if err = ws.validate_token(&auth); err != nil {
		ws.log.Info().Str("remote", r.RemoteAddr).Msg("invalid websocket token")
		ws.stat.AuthFailEv(time.Now())
		c.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	wctx, cancel := context.WithTimeout(r.Context(), ws.config.WriteTimeout)
	err = wsjson.Write(wctx, c, protocol.Ack(0, "", nil))
	cancel()
	if err != nil {
		ws.log.Error().Err(err).Msg("Error while acknowledging auth")
		return
	}

	id := atomic.AddUint64(&ws.seq, 1)
	wc := &WebstreamClient{id: id, srv: ws, c: c}
	wc.log = ws.log
	wc.log.Context = log.NewContext(append([]byte(nil), ws.log.Context...)).Uint64("conn", id).Str("remote", r.RemoteAddr).Value()
	wc.notify = make(chan struct{}, 1)
	wc.sess = ws.store.NewSession(r.RemoteAddr)
	atomic.AddInt64(&ws.active, 1)
	ws.stat.ConnectEv(time.Now())
	wc.log.Info().Msg("websocket client connected")

	ctx, stop := context.WithCancel(r.Context())
	wc.wg.Add(1)
	go wc.writeLoop(ctx)
	err = wc.readloop(ctx)
	stop()
	wc.wg.Wait()

	// fires the on-disconnect triggers
	wc.sess.Close()
	atomic.AddInt64(&ws.active, -1)
	ws.stat.DisconnectEv(time.Now())

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		wc.log.Info().Msg("websocket client disconnected")
		c.Close(websocket.StatusNormalClosure, "")
	default:
		wc.log.Warn().Err(err).Msg("websocket client lost")
	}
}

type WebstreamClient struct {
	id     uint64
	lock   sync.Mutex
	wg     sync.WaitGroup
	srv    *WebstreamServer
	c      *websocket.Conn
	sess   *memstore.Session
	sub    store.Subscription
	log    log.Logger
	notify chan struct{}
	acks   []protocol.Frame
	// only the latest snapshot is kept, each one replaces the previous
	snap *store.Snapshot
}

func (wc *WebstreamClient) signal() {
	select {
	case wc.notify <- struct{}{}:
	default:
	}
}

func (wc *WebstreamClient) ack(f protocol.Frame) {
	wc.lock.Lock()
	wc.acks = append(wc.acks, f)
	wc.lock.Unlock()
	wc.signal()
}

// Push queues a snapshot for the write loop.
func (wc *WebstreamClient) Push(s store.Snapshot) {
	wc.lock.Lock()
	wc.snap = &s
	wc.lock.Unlock()
	wc.signal()
}

func (wc *WebstreamClient) readloop(ctx context.Context) error {
	for {
		_, msg, err := wc.c.Read(ctx)
		if err != nil {
			return err
		}
		wc.srv.stat.CounterIncr(1, time.Now())
		var req protocol.Request
		if err = json.Unmarshal(msg, &req); err != nil {
			wc.log.Debug().Err(err).Msg("malformed frame")
			wc.ack(protocol.Ack(0, "", fmt.Errorf("%w: %v", protocol.ErrInvalidFrame, err)))
			continue
		}
		if err = req.Validate(); err != nil {
			wc.log.Debug().Err(err).Msg("rejected frame")
			wc.ack(protocol.Ack(req.ID, "", err))
			continue
		}
		wc.ack(wc.handle(ctx, &req))
	}
}

func (wc *WebstreamClient) handle(ctx context.Context, req *protocol.Request) protocol.Frame {
	switch req.Op {
	case protocol.OpUpdate:
		return protocol.Ack(req.ID, req.Key, wc.sess.Update(ctx, req.Key, req.Fields))
	case protocol.OpPush:
		key, err := wc.sess.Push(ctx, req.Fields)
		return protocol.Ack(req.ID, key, err)
	case protocol.OpOnDisconnect:
		return protocol.Ack(req.ID, req.Key, wc.sess.OnDisconnect(ctx, req.Key, req.Fields))
	case protocol.OpSubscribe:
		if wc.sub != nil {
			return protocol.Ack(req.ID, "", nil)
		}
		sub, err := wc.sess.Subscribe(ctx, wc.Push)
		if err == nil {
			wc.sub = sub
			wc.log.Trace().Msg("subscribed")
		}
		return protocol.Ack(req.ID, "", err)
	case protocol.OpUnsubscribe:
		if wc.sub != nil {
			wc.sub.Unsubscribe()
			wc.sub = nil
			wc.lock.Lock()
			wc.snap = nil
			wc.lock.Unlock()
		}
		return protocol.Ack(req.ID, "", nil)
	}
	return protocol.Ack(req.ID, "", protocol.ErrInvalidFrame)
}

func (wc *WebstreamClient) writeLoop(ctx context.Context) {
	defer wc.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-wc.notify:
		}
		wc.lock.Lock()
		acks := wc.acks
		snap := wc.snap
		wc.acks = nil
		wc.snap = nil
		wc.lock.Unlock()

		frames := acks
		if snap != nil {
			frames = append(frames, protocol.Snapshot(*snap))
		}
		for _, f := range frames {
			wctx, cancel := context.WithTimeout(ctx, wc.srv.config.WriteTimeout)
			err := wsjson.Write(wctx, wc.c, f)
			cancel()
			if err != nil {
				wc.log.Error().Err(err).Msg("Error while writing to connection")
				// unblocks the read loop
				wc.c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
