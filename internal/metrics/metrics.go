package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feastfriends",
		Name:      "rooms_created_total",
		Help:      "Waiting rooms created because no compatible room existed.",
	})

	RoomJoins = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feastfriends",
		Name:      "room_joins_total",
		Help:      "Successful joins into waiting rooms.",
	})

	GroupsFormed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feastfriends",
		Name:      "groups_formed_total",
		Help:      "Groups spawned from rooms that reached capacity.",
	})

	VotesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feastfriends",
		Name:      "votes_submitted_total",
		Help:      "Votes accepted by the engine.",
	}, []string{"mode"})

	RestaurantsSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feastfriends",
		Name:      "restaurants_selected_total",
		Help:      "Terminal selections by outcome kind.",
	}, []string{"outcome"})

	SweepSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feastfriends",
		Name:      "sweep_skips_total",
		Help:      "Documents skipped by a sweep due to lock contention or version conflict.",
	}, []string{"sweep", "reason"})
)
