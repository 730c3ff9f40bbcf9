// Package protocol defines the JSON text frames exchanged between a store
// client and the presence daemon over a websocket.
package protocol

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"nuha.dev/ravevision/internal/store"
)

const (
	OpAuth         = "auth"
	OpUpdate       = "update"
	OpPush         = "push"
	OpSubscribe    = "subscribe"
	OpUnsubscribe  = "unsubscribe"
	OpOnDisconnect = "on_disconnect"

	OpAck      = "ack"
	OpSnapshot = "snapshot"
)

// MaxKeyLen bounds record keys accepted by the daemon.
const MaxKeyLen = 256

var ErrInvalidFrame = errors.New("invalid frame")

// Request is a client frame. The first frame of a connection must be auth.
type Request struct {
	ID     uint64       `json:"id,omitempty"`
	Op     string       `json:"op" validate:"required,oneof=auth update push subscribe unsubscribe on_disconnect"`
	Key    string       `json:"key,omitempty" validate:"max=256"`
	Fields store.Fields `json:"fields,omitempty"`
	Token  string       `json:"token,omitempty" validate:"max=1024"`
}

// Frame is a server frame, either an ack or a snapshot.
type Frame struct {
	Op    string         `json:"op"`
	ID    uint64         `json:"id,omitempty"`
	Key   string         `json:"key,omitempty"`
	Error string         `json:"error,omitempty"`
	Data  store.Snapshot `json:"data,omitempty"`
}

var validate = validator.New()

// Validate checks the frame shape and the fields each op needs.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	switch r.Op {
	case OpUpdate, OpOnDisconnect:
		if r.Key == "" {
			return fmt.Errorf("%w: %s requires a key", ErrInvalidFrame, r.Op)
		}
		if len(r.Fields) == 0 {
			return fmt.Errorf("%w: %s requires fields", ErrInvalidFrame, r.Op)
		}
	case OpPush:
		if len(r.Fields) == 0 {
			return fmt.Errorf("%w: push requires fields", ErrInvalidFrame)
		}
	}
	if r.Op != OpAuth && r.ID == 0 {
		return fmt.Errorf("%w: %s requires an id", ErrInvalidFrame, r.Op)
	}
	return nil
}

func Ack(id uint64, key string, err error) Frame {
	f := Frame{Op: OpAck, ID: id, Key: key}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

func Snapshot(s store.Snapshot) Frame {
	return Frame{Op: OpSnapshot, Data: s}
}

// Err returns the ack error, if any.
func (f Frame) Err() error {
	if f.Error == "" {
		return nil
	}
	return errors.New(f.Error)
}
