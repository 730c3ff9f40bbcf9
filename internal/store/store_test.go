package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTimestampWireForm(t *testing.T) {
	b, err := json.Marshal(Fields{"lastSeen": ServerTimestamp})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastSeen":{".sv":"timestamp"}}`, string(b))

	var back map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, IsServerTimestamp(back["lastSeen"]))
	assert.True(t, IsServerTimestamp(ServerTimestamp))
	assert.True(t, IsServerTimestamp(json.RawMessage(`{".sv":"timestamp"}`)))
	assert.False(t, IsServerTimestamp("timestamp"))
	assert.False(t, IsServerTimestamp(map[string]interface{}{".sv": "increment"}))
}
