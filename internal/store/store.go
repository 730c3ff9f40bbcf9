package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Fields is a partial document. A nil value deletes the field.
type Fields map[string]interface{}

// Snapshot is the whole collection, keyed by record key. Each value is the
// record's JSON object.
type Snapshot map[string]json.RawMessage

// SnapshotFunc receives every snapshot. It must not write back into the store
// synchronously.
type SnapshotFunc func(Snapshot)

type Subscription interface {
	Unsubscribe()
}

// Store is the shared real-time mapping.
type Store interface {
	// Update merges fields into the record at key, creating it if needed.
	Update(ctx context.Context, key string, fields Fields) error
	// Push creates a record under a generated key and returns the key.
	Push(ctx context.Context, fields Fields) (string, error)
	// Subscribe delivers the current snapshot and then one after every change.
	Subscribe(ctx context.Context, fn SnapshotFunc) (Subscription, error)
	// OnDisconnect registers an update applied at key when the connection is
	// lost.
	OnDisconnect(ctx context.Context, key string, fields Fields) error
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's current time when the write is
// applied.
var ServerTimestamp = serverTimestamp{}

const serverTimestampToken = "timestamp"

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"` + serverTimestampToken + `"}`), nil
}

// IsServerTimestamp reports whether v is the sentinel, either as the Go value
// or in its decoded wire form.
func IsServerTimestamp(v interface{}) bool {
	switch t := v.(type) {
	case serverTimestamp:
		return true
	case map[string]interface{}:
		return len(t) == 1 && t[".sv"] == serverTimestampToken
	case json.RawMessage:
		return string(t) == `{".sv":"`+serverTimestampToken+`"}`
	}
	return false
}

var (
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid key")
)
