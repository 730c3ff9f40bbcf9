package webstream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/store/impl/memstore"
	"nuha.dev/ravevision/internal/util"
	"nuha.dev/ravevision/internal/web/protocol"
)

func newServer(t *testing.T, tokenHash string) (*WebstreamServer, *memstore.Store, string) {
	mem := memstore.New(&memstore.Config{})
	ws := NewWebstream(mem, WebStreamConfig{TokenHash: tokenHash, AuthTimeout: time.Second})
	srv := httptest.NewServer(ws.GetHandler())
	t.Cleanup(func() {
		srv.Close()
		mem.Close()
	})
	return ws, mem, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, token string) *websocket.Conn {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, c, protocol.Request{Op: protocol.OpAuth, Token: token}))
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) protocol.Frame {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var f protocol.Frame
	require.NoError(t, wsjson.Read(ctx, c, &f))
	return f
}

func field(doc json.RawMessage, name string) interface{} {
	var m map[string]interface{}
	if json.Unmarshal(doc, &m) != nil {
		return nil
	}
	return m[name]
}

func TestAuthFailureClosesWithPolicyViolation(t *testing.T) {
	hash, err := util.CryptPwd("s3cret")
	require.NoError(t, err)
	ws, _, url := newServer(t, hash)

	c := dial(t, url, "wrong")
	defer c.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Len(t, ws.Stats().AuthFailures, 1)
	assert.Equal(t, 0, ws.Connections())
}

func TestMalformedFrameIsAckedAndConnectionSurvives(t *testing.T) {
	_, mem, url := newServer(t, "")
	c := dial(t, url, "")

	ack := readFrame(t, c)
	require.Equal(t, protocol.OpAck, ack.Op)
	require.NoError(t, ack.Err())

	ctx := context.Background()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{not json`)))
	f := readFrame(t, c)
	assert.Equal(t, protocol.OpAck, f.Op)
	assert.Equal(t, uint64(0), f.ID)
	assert.Contains(t, f.Error, protocol.ErrInvalidFrame.Error())

	// a request without an id is rejected but also keeps the connection
	require.NoError(t, wsjson.Write(ctx, c, protocol.Request{Op: protocol.OpPush, Fields: store.Fields{"a": 1}}))
	f = readFrame(t, c)
	assert.Contains(t, f.Error, protocol.ErrInvalidFrame.Error())

	require.NoError(t, wsjson.Write(ctx, c, protocol.Request{ID: 7, Op: protocol.OpUpdate, Key: "u1", Fields: store.Fields{"online": true}}))
	f = readFrame(t, c)
	assert.Equal(t, uint64(7), f.ID)
	assert.NoError(t, f.Err())

	require.NoError(t, wsjson.Write(ctx, c, protocol.Request{ID: 8, Op: protocol.OpOnDisconnect, Key: "u1", Fields: store.Fields{"online": false}}))
	f = readFrame(t, c)
	assert.Equal(t, uint64(8), f.ID)
	assert.NoError(t, f.Err())

	c.Close(websocket.StatusNormalClosure, "")
	assert.Eventually(t, func() bool {
		return field(mem.Snapshot()["u1"], "online") == false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPushKeepsOnlyLatestSnapshot(t *testing.T) {
	wc := &WebstreamClient{notify: make(chan struct{}, 1)}

	wc.ack(protocol.Ack(1, "", nil))
	wc.Push(store.Snapshot{"u1": json.RawMessage(`{"n":1}`)})
	wc.Push(store.Snapshot{"u1": json.RawMessage(`{"n":2}`)})
	wc.ack(protocol.Ack(2, "", nil))
	wc.Push(store.Snapshot{"u1": json.RawMessage(`{"n":3}`)})

	assert.Len(t, wc.notify, 1)
	require.NotNil(t, wc.snap)
	assert.JSONEq(t, `{"n":3}`, string((*wc.snap)["u1"]))
	// acks are never coalesced
	require.Len(t, wc.acks, 2)
	assert.Equal(t, uint64(1), wc.acks[0].ID)
	assert.Equal(t, uint64(2), wc.acks[1].ID)
}

func TestSubscriberReceivesLatestState(t *testing.T) {
	_, mem, url := newServer(t, "")
	c := dial(t, url, "")
	defer c.Close(websocket.StatusNormalClosure, "")
	readFrame(t, c)

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, c, protocol.Request{ID: 1, Op: protocol.OpSubscribe}))
	for i := 1; i <= 5; i++ {
		require.NoError(t, mem.Update(ctx, "u1", store.Fields{"n": i}))
	}

	// snapshots may be merged, but the last one seen must be the final state
	acked := false
	for {
		f := readFrame(t, c)
		if f.Op == protocol.OpAck {
			assert.Equal(t, uint64(1), f.ID)
			acked = true
			continue
		}
		require.Equal(t, protocol.OpSnapshot, f.Op)
		if field(f.Data["u1"], "n") == 5.0 {
			break
		}
	}
	assert.True(t, acked)
}
