package model

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus = string

const (
	RoomStatusWaiting RoomStatus = "WAITING"
	RoomStatusMatched RoomStatus = "MATCHED"
)

// Room is a pre-group pool of users. Averages are recomputed on every join.
// Location is the mean over members who supplied coordinates;
// LocationMembers counts those contributors so the mean can roll
// forward. Version is the optimistic-concurrency token checked on
// every write.
type Room struct {
	ID              uuid.UUID
	Members         []uuid.UUID
	Cuisines        []string
	AvgBudget       float64
	AvgRadius       float64
	Location        *GeoPoint
	LocationMembers int
	Deadline        time.Time
	Status          RoomStatus
	Version         int64
}

func (r *Room) HasMember(userID uuid.UUID) bool {
	for _, id := range r.Members {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Room) RemoveMember(userID uuid.UUID) {
	members := r.Members[:0]
	for _, id := range r.Members {
		if id != userID {
			members = append(members, id)
		}
	}
	r.Members = members
}
