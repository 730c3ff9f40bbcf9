package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/web/stat"
)

type fixedStore store.Snapshot

func (f fixedStore) Snapshot() store.Snapshot { return store.Snapshot(f) }

type fixedConns int

func (c fixedConns) Connections() int { return int(c) }

func (c fixedConns) Stats() stat.Report {
	return stat.Report{Connects: []time.Time{time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}}
}

func TestStatusCountsGroups(t *testing.T) {
	st := fixedStore{
		"a": json.RawMessage(`{"username":"ann","groupName":"hikers","online":true}`),
		"b": json.RawMessage(`{"username":"bob","groupName":"Hikers","online":false}`),
		"c": json.RawMessage(`{"username":"cy","groupName":"divers","online":true}`),
		"d": json.RawMessage(`"garbage"`),
	}
	m := NewMonApi(st, fixedConns(2))

	rec := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 2, res.Connections)
	assert.Equal(t, GroupStatus{Members: 2, Online: 1}, res.Groups["hikers"])
	assert.Equal(t, GroupStatus{Members: 1, Online: 1}, res.Groups["divers"])
	assert.Len(t, res.Groups, 2)
	require.NotNil(t, res.Stats)
	assert.Len(t, res.Stats.Connects, 1)
}
