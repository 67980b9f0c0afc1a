package matching

import (
	"testing"

	"github.com/humanbelnik/feastfriends/core/internal/model"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
)

type MatchingSuite struct {
	suite.Suite
}

func waitingRoom(mutate func(*model.Room)) *model.Room {
	room := &model.Room{
		Status:    model.RoomStatusWaiting,
		Cuisines:  []string{"italian", "japanese"},
		AvgBudget: 50,
		AvgRadius: 5,
	}
	if mutate != nil {
		mutate(room)
	}
	return room
}

func (s *MatchingSuite) TestScore(t provider.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		room     *model.Room
		prefs    model.Preferences
		expected float64
		eligible bool
	}{
		{
			name: "Should give full score on identical preferences without location",
			room: waitingRoom(nil),
			prefs: model.Preferences{
				Cuisines: []string{"italian", "japanese"},
				Budget:   50,
				RadiusKm: 5,
			},
			// 25 cuisine + 30 budget + 20 radius, no proximity component.
			expected: 75,
			eligible: true,
		},
		{
			name: "Should award proximity for co-located users",
			room: waitingRoom(func(r *model.Room) {
				r.Location = &model.GeoPoint{Lat: 55.75, Lon: 37.61}
			}),
			prefs: model.Preferences{
				Cuisines: []string{"italian", "japanese"},
				Budget:   50,
				RadiusKm: 5,
				Location: &model.GeoPoint{Lat: 55.75, Lon: 37.61},
			},
			expected: 95,
			eligible: true,
		},
		{
			name: "Should reject room beyond combined radius",
			room: waitingRoom(func(r *model.Room) {
				r.Location = &model.GeoPoint{Lat: 55.75, Lon: 37.61}
			}),
			prefs: model.Preferences{
				Cuisines: []string{"italian"},
				Budget:   50,
				RadiusKm: 5,
				// Saint Petersburg, ~630km away.
				Location: &model.GeoPoint{Lat: 59.93, Lon: 30.33},
			},
			eligible: false,
		},
		{
			name: "Should reject room without coordinates when user has them",
			room: waitingRoom(nil),
			prefs: model.Preferences{
				Cuisines: []string{"italian"},
				Budget:   50,
				RadiusKm: 5,
				Location: &model.GeoPoint{Lat: 55.75, Lon: 37.61},
			},
			eligible: false,
		},
		{
			name: "Should give partial cuisine credit",
			room: waitingRoom(nil),
			prefs: model.Preferences{
				Cuisines: []string{"italian", "thai"},
				Budget:   50,
				RadiusKm: 5,
			},
			// 12.5 cuisine + 30 budget + 20 radius.
			expected: 62.5,
			eligible: true,
		},
		{
			name: "Should floor budget and radius components at zero",
			room: waitingRoom(nil),
			prefs: model.Preferences{
				Cuisines: []string{"thai"},
				Budget:   200,
				RadiusKm: 50,
			},
			expected: 0,
			eligible: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t provider.T) {
			t.Parallel()

			score, ok := Score(tc.room, tc.prefs)

			assert.Equal(t, tc.eligible, ok)
			if tc.eligible {
				assert.InDelta(t, tc.expected, score, 0.01)
			}
		})
	}
}

func (s *MatchingSuite) TestBestRoom(t provider.T) {
	t.Parallel()

	prefs := model.Preferences{
		Cuisines: []string{"italian", "japanese"},
		Budget:   50,
		RadiusKm: 5,
	}

	t.Run("Should pick the highest scoring room", func(t provider.T) {
		t.Parallel()
		weaker := waitingRoom(func(r *model.Room) { r.AvgBudget = 80 })
		stronger := waitingRoom(nil)

		best, ok := BestRoom([]*model.Room{weaker, stronger}, prefs)

		assert.True(t, ok)
		assert.Same(t, stronger, best)
	})

	t.Run("Should break ties by first seen order", func(t provider.T) {
		t.Parallel()
		first := waitingRoom(nil)
		second := waitingRoom(nil)

		best, ok := BestRoom([]*model.Room{first, second}, prefs)

		assert.True(t, ok)
		assert.Same(t, first, best)
	})

	t.Run("Should skip rooms that are not waiting", func(t provider.T) {
		t.Parallel()
		matched := waitingRoom(func(r *model.Room) { r.Status = model.RoomStatusMatched })

		_, ok := BestRoom([]*model.Room{matched}, prefs)

		assert.False(t, ok)
	})

	t.Run("Should report no match below the eligibility floor", func(t provider.T) {
		t.Parallel()
		far := waitingRoom(func(r *model.Room) {
			r.Cuisines = []string{"georgian"}
			r.AvgBudget = 500
			r.AvgRadius = 100
		})

		_, ok := BestRoom([]*model.Room{far}, prefs)

		assert.False(t, ok)
	})

	t.Run("Should report no match on empty input", func(t provider.T) {
		t.Parallel()

		_, ok := BestRoom(nil, prefs)

		assert.False(t, ok)
	})
}

func (s *MatchingSuite) TestDistanceKm(t provider.T) {
	t.Parallel()

	t.Run("Should return zero for identical points", func(t provider.T) {
		t.Parallel()
		p := model.GeoPoint{Lat: 55.75, Lon: 37.61}

		assert.InDelta(t, 0, DistanceKm(p, p), 0.001)
	})

	t.Run("Should approximate a known distance", func(t provider.T) {
		t.Parallel()
		moscow := model.GeoPoint{Lat: 55.7558, Lon: 37.6173}
		spb := model.GeoPoint{Lat: 59.9311, Lon: 30.3609}

		// Roughly 630km between the two city centers.
		assert.InDelta(t, 634, DistanceKm(moscow, spb), 10)
	})
}

func TestMatchingSuite(t *testing.T) {
	suite.RunSuite(t, new(MatchingSuite))
}
