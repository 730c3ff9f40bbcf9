package wsstore

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"nhooyr.io/websocket"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/store/impl/memstore"
	"nuha.dev/ravevision/internal/web/webstream"
)

type daemon struct {
	mem *memstore.Store
	ws  *webstream.WebstreamServer
	srv *httptest.Server
	url string
}

func newDaemon(t *testing.T, tokenHash string) *daemon {
	d := &daemon{}
	d.mem = memstore.New(&memstore.Config{})
	d.ws = webstream.NewWebstream(d.mem, webstream.WebStreamConfig{TokenHash: tokenHash})
	d.srv = httptest.NewServer(d.ws.GetHandler())
	d.url = "ws" + strings.TrimPrefix(d.srv.URL, "http")
	t.Cleanup(func() {
		d.srv.Close()
		d.mem.Close()
	})
	return d
}

func TestRoundTrip(t *testing.T) {
	d := newDaemon(t, "")
	ctx := context.Background()

	c, err := Dial(ctx, Config{URL: d.url})
	require.NoError(t, err)
	defer c.Close()

	key, err := c.Push(ctx, store.Fields{"username": "ann", "groupName": "hikers"})
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.NoError(t, c.Update(ctx, key, store.Fields{"online": true}))

	snaps := make(chan store.Snapshot, 16)
	sub, err := c.Subscribe(ctx, func(s store.Snapshot) { snaps <- s })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case s := <-snaps:
		assert.JSONEq(t, `{"username":"ann","groupName":"hikers","online":true}`, string(s[key]))
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, c.Update(ctx, key, store.Fields{"online": nil}))
	select {
	case s := <-snaps:
		assert.JSONEq(t, `{"username":"ann","groupName":"hikers"}`, string(s[key]))
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after update")
	}

	// a second local subscriber gets the last snapshot straight away
	var got store.Snapshot
	sub2, err := c.Subscribe(ctx, func(s store.Snapshot) { got = s })
	require.NoError(t, err)
	sub2.Unsubscribe()
	assert.Contains(t, got, key)
}

func TestRejectedWriteIsAnError(t *testing.T) {
	d := newDaemon(t, "")
	ctx := context.Background()
	c, err := Dial(ctx, Config{URL: d.url})
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.Update(ctx, "a/b", store.Fields{"online": true}))
	assert.Error(t, c.Update(ctx, "u1", store.Fields{}))
	// the connection survives a rejected frame
	assert.NoError(t, c.Update(ctx, "u1", store.Fields{"online": true}))
}

func TestDisconnectFiresTriggers(t *testing.T) {
	d := newDaemon(t, "")
	ctx := context.Background()
	c, err := Dial(ctx, Config{URL: d.url})
	require.NoError(t, err)

	require.NoError(t, c.Update(ctx, "u1", store.Fields{"online": true}))
	require.NoError(t, c.OnDisconnect(ctx, "u1", store.Fields{"online": false, "lastSeen": store.ServerTimestamp}))
	assert.Equal(t, 1, d.ws.Connections())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return d.ws.Connections() == 0 && d.mem.Sessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
	doc := string(d.mem.Snapshot()["u1"])
	assert.Contains(t, doc, `"online":false`)
	assert.Contains(t, doc, `"lastSeen":"`)

	assert.ErrorIs(t, c.Update(ctx, "u1", store.Fields{"online": true}), store.ErrClosed)
	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestTokenAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	d := newDaemon(t, string(hash))
	ctx := context.Background()

	_, err = Dial(ctx, Config{URL: d.url, Token: "wrong"})
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Len(t, d.ws.Stats().AuthFailures, 1)

	c, err := Dial(ctx, Config{URL: d.url, Token: "s3cret"})
	require.NoError(t, err)
	assert.NoError(t, c.Update(ctx, "u1", store.Fields{"online": true}))
	assert.NoError(t, c.Close())
}
