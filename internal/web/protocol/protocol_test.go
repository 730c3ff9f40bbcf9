package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuha.dev/ravevision/internal/store"
)

func TestRequestValidate(t *testing.T) {
	fields := store.Fields{"online": true}
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"auth", Request{Op: OpAuth, Token: "secret"}, true},
		{"auth without token", Request{Op: OpAuth}, true},
		{"update", Request{ID: 1, Op: OpUpdate, Key: "u1", Fields: fields}, true},
		{"update without key", Request{ID: 1, Op: OpUpdate, Fields: fields}, false},
		{"update without fields", Request{ID: 1, Op: OpUpdate, Key: "u1"}, false},
		{"push", Request{ID: 2, Op: OpPush, Fields: fields}, true},
		{"push without fields", Request{ID: 2, Op: OpPush}, false},
		{"subscribe", Request{ID: 3, Op: OpSubscribe}, true},
		{"subscribe without id", Request{Op: OpSubscribe}, false},
		{"unsubscribe", Request{ID: 4, Op: OpUnsubscribe}, true},
		{"on_disconnect", Request{ID: 5, Op: OpOnDisconnect, Key: "u1", Fields: fields}, true},
		{"on_disconnect without key", Request{ID: 5, Op: OpOnDisconnect, Fields: fields}, false},
		{"unknown op", Request{ID: 6, Op: "delete", Key: "u1"}, false},
		{"missing op", Request{ID: 7}, false},
		{"long key", Request{ID: 8, Op: OpUpdate, Key: strings.Repeat("k", MaxKeyLen+1), Fields: fields}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFrame)
			}
		})
	}
}

func TestServerTimestampSurvivesTheWire(t *testing.T) {
	b, err := json.Marshal(Request{ID: 1, Op: OpOnDisconnect, Key: "u1", Fields: store.Fields{"lastSeen": store.ServerTimestamp}})
	require.NoError(t, err)
	var req Request
	require.NoError(t, json.Unmarshal(b, &req))
	assert.True(t, store.IsServerTimestamp(req.Fields["lastSeen"]))
}

func TestAck(t *testing.T) {
	f := Ack(3, "k1", nil)
	assert.Equal(t, OpAck, f.Op)
	assert.NoError(t, f.Err())

	f = Ack(4, "", errors.New("invalid key"))
	assert.EqualError(t, f.Err(), "invalid key")

	b, err := json.Marshal(Snapshot(store.Snapshot{"u1": json.RawMessage(`{"online":true}`)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"snapshot","data":{"u1":{"online":true}}}`, string(b))
}
