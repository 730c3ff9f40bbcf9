package roster

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/store/impl/memstore"
	"nuha.dev/ravevision/internal/user"
)

const located = `"location":{"latitude":1,"longitude":2,"timestamp":0}`

func snapshot() store.Snapshot {
	return store.Snapshot{
		"self":    json.RawMessage(`{"username":"me","groupName":"hikers",` + located + `}`),
		"b":       json.RawMessage(`{"username":"bob","groupName":"HIKERS",` + located + `,"online":true}`),
		"a":       json.RawMessage(`{"username":"ann","groupName":"hikers",` + located + `}`),
		"noloc":   json.RawMessage(`{"username":"nl","groupName":"hikers","online":true}`),
		"other":   json.RawMessage(`{"username":"x","groupName":"divers",` + located + `}`),
		"unnamed": json.RawMessage(`{"groupName":"Hikers",` + located + `}`),
		"bad":     json.RawMessage(`[1,2]`),
	}
}

func TestFilter(t *testing.T) {
	self := user.NewIdentity("self", "me", "Hikers")
	peers, bad := Filter(self, snapshot())

	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"a", "b", "unnamed"}, ids)
	assert.Equal(t, []string{"bad"}, bad)
	assert.Equal(t, user.UnknownName, peers[2].DisplayName)
	assert.True(t, peers[1].Online)
	require.NotNil(t, peers[0].Location)
	assert.Equal(t, 2.0, peers[0].Location.Longitude)
}

func TestFilterEmpty(t *testing.T) {
	peers, bad := Filter(user.NewIdentity("self", "me", "hikers"), store.Snapshot{})
	assert.Empty(t, peers)
	assert.Empty(t, bad)
}

func TestRosterFollowsStore(t *testing.T) {
	mem := memstore.New(&memstore.Config{})
	defer mem.Close()
	ctx := context.Background()
	snap := snapshot()
	delete(snap, "bad")
	require.NoError(t, mem.Load(snap))

	var sets [][]user.PresenceRecord
	r := New(mem, user.NewIdentity("self", "me", "hikers"))
	require.NoError(t, r.Start(ctx, func(p []user.PresenceRecord) { sets = append(sets, p) }))
	require.Len(t, sets, 1)
	assert.Len(t, sets[0], 3)

	require.NoError(t, mem.Update(ctx, "other", store.Fields{"groupName": "hikers"}))
	require.Len(t, sets, 2)
	assert.Len(t, sets[1], 4)
	assert.Equal(t, sets[1], r.Peers())

	r.Stop()
	r.Stop()
	require.NoError(t, mem.Update(ctx, "a", store.Fields{"online": true}))
	assert.Len(t, sets, 2)
}
