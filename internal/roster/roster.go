// Package roster reduces the shared user collection to the peers of the local
// user's group.
package roster

import (
	"context"
	"sort"
	"sync"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/store"
	"nuha.dev/ravevision/internal/user"
)

// Filter returns the peers in snap that share self's group and have a
// location, sorted by id. Keys whose document cannot be decoded are returned
// in bad.
func Filter(self user.Identity, snap store.Snapshot) (peers []user.PresenceRecord, bad []string) {
	peers = make([]user.PresenceRecord, 0, len(snap))
	for key, raw := range snap {
		if key == self.ID {
			continue
		}
		doc, err := user.DecodeDocument(raw)
		if err != nil {
			bad = append(bad, key)
			continue
		}
		if doc.Location == nil || !self.SameGroup(doc.GroupName) {
			continue
		}
		peers = append(peers, doc.Record(key))
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	sort.Strings(bad)
	return peers, bad
}

type Roster struct {
	mu    sync.Mutex
	log   log.Logger
	store store.Store
	self  user.Identity
	sub   store.Subscription
	peers []user.PresenceRecord
}

func New(st store.Store, self user.Identity) *Roster {
	r := &Roster{store: st, self: self}
	r.log = log.DefaultLogger
	r.log.Context = log.NewContext(nil).Str("module", "roster").Str("group", self.GroupKey).Value()
	return r
}

// Start subscribes to the collection. fn receives the full peer set after
// every snapshot; it must not write to the store synchronously.
func (r *Roster) Start(ctx context.Context, fn func([]user.PresenceRecord)) error {
	sub, err := r.store.Subscribe(ctx, func(snap store.Snapshot) {
		peers, bad := Filter(r.self, snap)
		for _, key := range bad {
			r.log.Warn().Str("key", key).Msg("skipping undecodable record")
		}
		r.mu.Lock()
		r.peers = peers
		r.mu.Unlock()
		if fn != nil {
			fn(peers)
		}
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	return nil
}

// Peers returns the last peer set.
func (r *Roster) Peers() []user.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers
}

func (r *Roster) Stop() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
		r.log.Debug().Msg("roster unsubscribed")
	}
}
