package model

import "github.com/google/uuid"

type UserStatus = string

const (
	StatusOnline        UserStatus = "ONLINE"
	StatusInWaitingRoom UserStatus = "IN_WAITING_ROOM"
	StatusInGroup       UserStatus = "IN_GROUP"
	StatusOffline       UserStatus = "OFFLINE"
)

// User is owned externally; the engine only reads stored preferences
// and moves the volatile state as membership changes.
type User struct {
	ID       uuid.UUID
	Cuisines []string
	Budget   *float64
	RadiusKm *float64
}

// UserState is the volatile part kept in the cache. A user is never
// referenced by more than one room or group at a time.
type UserState struct {
	Status  UserStatus `json:"status"`
	RoomID  string     `json:"room_id,omitempty"`
	GroupID string     `json:"group_id,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Preferences are fully resolved values after the fallback chain.
type Preferences struct {
	Cuisines []string
	Budget   float64
	RadiusKm float64
	Location *GeoPoint
}

// JoinRequest carries raw, possibly missing values as supplied by the caller.
type JoinRequest struct {
	Cuisines []string
	Budget   *float64
	RadiusKm *float64
	Location *GeoPoint
}
