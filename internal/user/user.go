// Package user holds the participant identity and the presence document kept
// for each participant in the shared store.
package user

import (
	"strings"

	"github.com/phuslu/log"

	"nuha.dev/ravevision/internal/geo"
)

const UnknownName = "Unknown User"

// Identity of a participant. ID is assigned by the store.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	GroupKey    string `json:"group_key"`
}

// NewIdentity trims the inputs and case-folds the group once.
func NewIdentity(id, displayName, group string) Identity {
	return Identity{ID: id, DisplayName: strings.TrimSpace(displayName), GroupKey: GroupKey(group)}
}

// GroupKey is the stored form of a group name.
func GroupKey(group string) string {
	return strings.ToLower(strings.TrimSpace(group))
}

// SameGroup compares group keys case-insensitively.
func (i Identity) SameGroup(groupKey string) bool {
	return i.GroupKey != "" && strings.EqualFold(i.GroupKey, groupKey)
}

func (i Identity) MarshalObject(e *log.Entry) {
	e.Str("user_id", i.ID).Str("name", i.DisplayName).Str("group", i.GroupKey)
}

// LocationError is the last failed fix published by a user.
type LocationError struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PresenceRecord is a read-only view of one participant's document.
type PresenceRecord struct {
	Identity
	Location      *geo.Coordinate
	Online        bool
	LastSeen      string
	LocationError *LocationError
}
