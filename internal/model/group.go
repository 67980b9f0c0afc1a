package model

import (
	"time"

	"github.com/google/uuid"
)

type GroupStatus = string

const (
	GroupStatusVoting    GroupStatus = "voting"
	GroupStatusSelected  GroupStatus = "selected"
	GroupStatusAbandoned GroupStatus = "abandoned"
)

type VotingMode = string

const (
	ModeList       VotingMode = "list"
	ModeSequential VotingMode = "sequential"
)

type RoundStatus = string

const (
	RoundStatusActive  RoundStatus = "active"
	RoundStatusExpired RoundStatus = "expired"
)

// Group runs the restaurant vote for a fixed member set snapshotted
// from the originating room, along with the room's aggregate
// preferences used to rank candidates. Exactly one of List /
// Sequential is non-nil, matching Mode. Version is the
// optimistic-concurrency token.
type Group struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	Members   []uuid.UUID
	Cuisines  []string
	AvgBudget float64
	AvgRadius float64
	Location  *GeoPoint

	Mode       VotingMode
	Status     GroupStatus
	Deadline   time.Time
	Selected   *Restaurant
	List       *ListBallot
	Sequential *Sequential
	Version    int64
}

// ListBallot is the legacy free-choice mode: every member picks any
// restaurant id at any time. Order keeps first-seen ids for tie breaks.
type ListBallot struct {
	Choices map[uuid.UUID]string `json:"choices"`
	Tally   map[string]int       `json:"tally"`
	Order   []string             `json:"order"`
}

// Sequential is the one-candidate-at-a-time mode with per-round
// timeouts and a majority rule.
type Sequential struct {
	Pool         []Restaurant  `json:"pool"`
	History      []string      `json:"history"`
	HistoryVotes []RoundRecord `json:"history_votes"`
	Round        *Round        `json:"round,omitempty"`
	MaxRounds    int           `json:"max_rounds"`
	RoundTimeout time.Duration `json:"round_timeout"`
}

// RoundRecord is the per-candidate outcome kept in the detailed history.
type RoundRecord struct {
	RestaurantID string `json:"restaurant_id"`
	Yes          int    `json:"yes"`
	No           int    `json:"no"`
}

type Round struct {
	Restaurant Restaurant         `json:"restaurant"`
	Votes      map[uuid.UUID]bool `json:"votes"`
	Yes        int                `json:"yes"`
	No         int                `json:"no"`
	StartedAt  time.Time          `json:"started_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
	Status     RoundStatus        `json:"status"`
}

// RecountVotes rebuilds the running counts from the vote map. Used after
// member removal, where the removed user may or may not have voted.
func (r *Round) RecountVotes() {
	r.Yes, r.No = 0, 0
	for _, v := range r.Votes {
		if v {
			r.Yes++
		} else {
			r.No++
		}
	}
}

func (g *Group) HasMember(userID uuid.UUID) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

func (g *Group) RemoveMember(userID uuid.UUID) {
	members := g.Members[:0]
	for _, id := range g.Members {
		if id != userID {
			members = append(members, id)
		}
	}
	g.Members = members
}

// MajorityThreshold is floor(n/2)+1 over current members. It applies
// uniformly down to single-member groups (threshold 1).
func (g *Group) MajorityThreshold() int {
	return len(g.Members)/2 + 1
}
