package user

import (
	"encoding/json"

	"nuha.dev/ravevision/internal/geo"
)

// Field names of the stored document.
const (
	FieldUsername               = "username"
	FieldGroupName              = "groupName"
	FieldLocation               = "location"
	FieldOnline                 = "online"
	FieldLastSeen               = "lastSeen"
	FieldLocationError          = "locationError"
	FieldOrientationPermissions = "orientationPermissions"
	FieldCreatedAt              = "createdAt"
)

// PublishedLocation is a fix as written to the store.
type PublishedLocation struct {
	geo.Coordinate
	LastUpdated string `json:"lastUpdated,omitempty"`
}

type Permissions struct {
	OrientationGranted bool   `json:"orientationGranted"`
	MotionGranted      bool   `json:"motionGranted"`
	Error              string `json:"error,omitempty"`
}

// Document is the JSON shape of a user entry in the store.
type Document struct {
	Username               string             `json:"username"`
	GroupName              string             `json:"groupName"`
	Location               *PublishedLocation `json:"location,omitempty"`
	Online                 bool               `json:"online"`
	LastSeen               string             `json:"lastSeen,omitempty"`
	LocationError          *LocationError     `json:"locationError,omitempty"`
	OrientationPermissions *Permissions       `json:"orientationPermissions,omitempty"`
	CreatedAt              string             `json:"createdAt,omitempty"`
}

func DecodeDocument(raw json.RawMessage) (*Document, error) {
	d := &Document{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Record converts a stored document into a presence record for id.
func (d *Document) Record(id string) PresenceRecord {
	name := d.Username
	if name == "" {
		name = UnknownName
	}
	r := PresenceRecord{
		Identity:      Identity{ID: id, DisplayName: name, GroupKey: d.GroupName},
		Online:        d.Online,
		LastSeen:      d.LastSeen,
		LocationError: d.LocationError,
	}
	if d.Location != nil {
		c := d.Location.Coordinate
		r.Location = &c
	}
	return r
}
