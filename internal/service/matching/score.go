package matching

import (
	"math"

	"github.com/humanbelnik/feastfriends/core/internal/model"
)

const (
	CuisineWeight   = 25.0
	BudgetWeight    = 30.0
	RadiusWeight    = 20.0
	ProximityWeight = 20.0

	// MinMatchScore is the eligibility floor: rooms scoring below it are
	// never joined, a fresh room is created instead.
	MinMatchScore = 30.0
)

// Score computes the compatibility between a waiting room's aggregate
// attributes and a joining user's resolved preferences. The second
// return is false when the room is rejected outright by the distance
// filter; the filter runs before any scoring.
func Score(room *model.Room, prefs model.Preferences) (float64, bool) {
	var score float64

	if prefs.Location != nil {
		// A room without coordinates counts as too far, not unknown.
		if room.Location == nil {
			return 0, false
		}
		dist := DistanceKm(*room.Location, *prefs.Location)
		limit := room.AvgRadius + prefs.RadiusKm
		if dist > limit {
			return 0, false
		}
		if limit > 0 {
			score += ProximityWeight * (1 - dist/limit)
		}
	}

	score += cuisineOverlap(room.Cuisines, prefs.Cuisines)
	score += math.Max(0, BudgetWeight-math.Abs(room.AvgBudget-prefs.Budget))
	score += math.Max(0, RadiusWeight-2*math.Abs(room.AvgRadius-prefs.RadiusKm))

	return score, true
}

// cuisineOverlap awards a share of CuisineWeight proportional to how
// many of the user's cuisines the room already covers. Zero on
// disjoint sets.
func cuisineOverlap(roomCuisines, userCuisines []string) float64 {
	if len(userCuisines) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(roomCuisines))
	for _, c := range roomCuisines {
		set[c] = struct{}{}
	}
	var hits int
	for _, c := range userCuisines {
		if _, ok := set[c]; ok {
			hits++
		}
	}
	return CuisineWeight * float64(hits) / float64(len(userCuisines))
}
