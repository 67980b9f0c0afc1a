package usecase_waitingroom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	"github.com/humanbelnik/feastfriends/core/internal/service/idlock"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
)

type UsecaseWaitingRoomSuite struct {
	suite.Suite
}

type memRooms struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*model.Room
}

func newMemRooms() *memRooms {
	return &memRooms{rooms: make(map[uuid.UUID]*model.Room)}
}

func (m *memRooms) Create(_ context.Context, room *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = room
	return nil
}

func (m *memRooms) Load(_ context.Context, id uuid.UUID) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return room, nil
}

func (m *memRooms) Update(_ context.Context, room *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rooms[room.ID]
	if !ok {
		return ErrResourceNotFound
	}
	if stored.Version != room.Version {
		return ErrVersionConflict
	}
	room.Version++
	m.rooms[room.ID] = room
	return nil
}

func (m *memRooms) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrResourceNotFound
	}
	delete(m.rooms, id)
	return nil
}

func (m *memRooms) LoadWaiting(_ context.Context) ([]*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Room
	for _, room := range m.rooms {
		if room.Status == model.RoomStatusWaiting {
			out = append(out, room)
		}
	}
	return out, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[uuid.UUID]model.User)}
}

func (m *memUsers) Load(_ context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrResourceNotFound
	}
	return user, nil
}

func (m *memUsers) Save(_ context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

type memStates struct {
	mu     sync.Mutex
	states map[uuid.UUID]model.UserState
}

func newMemStates() *memStates {
	return &memStates{states: make(map[uuid.UUID]model.UserState)}
}

func (s *memStates) Get(_ context.Context, userID uuid.UUID) (model.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return model.UserState{Status: model.StatusOnline}, nil
	}
	return state, nil
}

func (s *memStates) Set(_ context.Context, userID uuid.UUID, state model.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = state
	return nil
}

func (s *memStates) get(userID uuid.UUID) model.UserState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

type fakeGroupCreator struct {
	mu     sync.Mutex
	called int
	last   *model.Room
	states *memStates
}

func (f *fakeGroupCreator) CreateFromRoom(ctx context.Context, room *model.Room) (*model.Group, error) {
	f.mu.Lock()
	f.called++
	f.last = room
	f.mu.Unlock()

	g := &model.Group{ID: uuid.New(), RoomID: room.ID, Members: room.Members}
	for _, id := range room.Members {
		_ = f.states.Set(ctx, id, model.UserState{Status: model.StatusInGroup, GroupID: g.ID.String()})
	}
	return g, nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyRoomUpdate(uuid.UUID, int) {}

func (noopNotifier) NotifyMemberJoined(uuid.UUID, uuid.UUID) {}

func (noopNotifier) NotifyMemberLeft(uuid.UUID, uuid.UUID) {}

type roomResources struct {
	usecase *Usecase
	rooms   *memRooms
	users   *memUsers
	states  *memStates
	groups  *fakeGroupCreator
	locks   *idlock.Registry
	ctx     context.Context
}

func initRoomResources(cfg Config, opts ...Option) *roomResources {
	rooms := newMemRooms()
	users := newMemUsers()
	states := newMemStates()
	groups := &fakeGroupCreator{states: states}
	locks := idlock.New()

	usecase := New(rooms, users, states, groups, noopNotifier{}, locks, cfg, opts...)

	return &roomResources{
		usecase: usecase,
		rooms:   rooms,
		users:   users,
		states:  states,
		groups:  groups,
		locks:   locks,
		ctx:     context.Background(),
	}
}

func budgetPtr(v float64) *float64 { return &v }

func (s *UsecaseWaitingRoomSuite) TestJoin(t provider.T) {
	t.Parallel()

	t.Run("Should create a room when none exist", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{
			Cuisines: []string{"thai"},
			Budget:   budgetPtr(70),
		})

		assert.NoError(t, err)
		assert.Equal(t, model.RoomStatusWaiting, room.Status)
		assert.Equal(t, []uuid.UUID{userID}, room.Members)
		assert.Equal(t, 70.0, room.AvgBudget)
		assert.Equal(t, DefaultRadiusKm, room.AvgRadius)
		assert.Equal(t, model.StatusInWaitingRoom, r.states.get(userID).Status)
		assert.Equal(t, room.ID.String(), r.states.get(userID).RoomID)
	})

	t.Run("Should admit a compatible user into an existing room", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		first := uuid.New()
		second := uuid.New()

		room, err := r.usecase.Join(r.ctx, first, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)
		joined, err := r.usecase.Join(r.ctx, second, model.JoinRequest{Cuisines: []string{"thai"}})

		assert.NoError(t, err)
		assert.Equal(t, room.ID, joined.ID)
		assert.Len(t, joined.Members, 2)
	})

	t.Run("Should roll the averages forward on admit", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		first := uuid.New()
		second := uuid.New()

		_, err := r.usecase.Join(r.ctx, first, model.JoinRequest{
			Cuisines: []string{"thai"}, Budget: budgetPtr(40), RadiusKm: budgetPtr(4),
		})
		assert.NoError(t, err)
		joined, err := r.usecase.Join(r.ctx, second, model.JoinRequest{
			Cuisines: []string{"thai", "indian"}, Budget: budgetPtr(60), RadiusKm: budgetPtr(6),
		})

		assert.NoError(t, err)
		assert.InDelta(t, 50, joined.AvgBudget, 0.001)
		assert.InDelta(t, 5, joined.AvgRadius, 0.001)
		assert.Equal(t, []string{"thai", "indian"}, joined.Cuisines)
	})

	t.Run("Should spawn a group when the last seat fills", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 2})
		first := uuid.New()
		second := uuid.New()

		_, err := r.usecase.Join(r.ctx, first, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)
		room, err := r.usecase.Join(r.ctx, second, model.JoinRequest{Cuisines: []string{"thai"}})

		assert.NoError(t, err)
		assert.Equal(t, model.RoomStatusMatched, room.Status)
		assert.Equal(t, 1, r.groups.called)
		assert.Equal(t, model.StatusInGroup, r.states.get(first).Status)
		assert.Equal(t, model.StatusInGroup, r.states.get(second).Status)
	})

	t.Run("Should rejoin the same room idempotently", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)
		again, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})

		assert.NoError(t, err)
		assert.Equal(t, room.ID, again.ID)
		assert.Len(t, again.Members, 1)
	})

	t.Run("Should reject a user already in a group", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()
		assert.NoError(t, r.states.Set(r.ctx, userID, model.UserState{
			Status:  model.StatusInGroup,
			GroupID: uuid.New().String(),
		}))

		_, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{})

		assert.ErrorIs(t, err, ErrAlreadyInGroup)
	})

	t.Run("Should fall back to stored preferences", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()
		assert.NoError(t, r.users.Save(r.ctx, model.User{
			ID:       userID,
			Cuisines: []string{"indian"},
			Budget:   budgetPtr(80),
		}))

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{})

		assert.NoError(t, err)
		assert.Equal(t, []string{"indian"}, room.Cuisines)
		assert.Equal(t, 80.0, room.AvgBudget)
	})

	t.Run("Should create a separate room for an incompatible user", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		first := uuid.New()
		second := uuid.New()

		room, err := r.usecase.Join(r.ctx, first, model.JoinRequest{
			Cuisines: []string{"thai"}, Budget: budgetPtr(30), RadiusKm: budgetPtr(2),
		})
		assert.NoError(t, err)
		other, err := r.usecase.Join(r.ctx, second, model.JoinRequest{
			Cuisines: []string{"georgian"}, Budget: budgetPtr(500), RadiusKm: budgetPtr(50),
		})

		assert.NoError(t, err)
		assert.NotEqual(t, room.ID, other.ID)
	})
}

func (s *UsecaseWaitingRoomSuite) TestLeave(t provider.T) {
	t.Parallel()

	t.Run("Should remove the member and keep the room", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		first := uuid.New()
		second := uuid.New()

		room, err := r.usecase.Join(r.ctx, first, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)
		_, err = r.usecase.Join(r.ctx, second, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)

		assert.NoError(t, r.usecase.Leave(r.ctx, room.ID, first))

		stored, err := r.rooms.Load(r.ctx, room.ID)
		assert.NoError(t, err)
		assert.Equal(t, []uuid.UUID{second}, stored.Members)
		assert.Equal(t, model.StatusOnline, r.states.get(first).Status)
	})

	t.Run("Should delete an emptied room", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)

		assert.NoError(t, r.usecase.Leave(r.ctx, room.ID, userID))

		_, err = r.rooms.Load(r.ctx, room.ID)
		assert.ErrorIs(t, err, ErrResourceNotFound)
	})

	t.Run("Should treat a missing room as stale state cleanup", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()
		assert.NoError(t, r.states.Set(r.ctx, userID, model.UserState{
			Status: model.StatusInWaitingRoom,
			RoomID: uuid.New().String(),
		}))

		assert.NoError(t, r.usecase.Leave(r.ctx, uuid.New(), userID))
		assert.Equal(t, model.StatusOnline, r.states.get(userID).Status)
	})

	t.Run("Should keep a matched room and its group members intact", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 2})
		first := uuid.New()
		second := uuid.New()

		_, err := r.usecase.Join(r.ctx, first, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)
		room, err := r.usecase.Join(r.ctx, second, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)
		assert.Equal(t, model.RoomStatusMatched, room.Status)

		// The room is history now; the member leaves through the group.
		assert.NoError(t, r.usecase.Leave(r.ctx, room.ID, first))

		stored, err := r.rooms.Load(r.ctx, room.ID)
		assert.NoError(t, err)
		assert.Len(t, stored.Members, 2)
		assert.Equal(t, model.StatusInGroup, r.states.get(first).Status)

		_, err = r.usecase.Join(r.ctx, first, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.ErrorIs(t, err, ErrAlreadyInGroup)
	})

	t.Run("Should treat a non member as a no-op", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)

		assert.NoError(t, r.usecase.Leave(r.ctx, room.ID, uuid.New()))

		stored, err := r.rooms.Load(r.ctx, room.ID)
		assert.NoError(t, err)
		assert.Len(t, stored.Members, 1)
	})
}

func (s *UsecaseWaitingRoomSuite) TestExpireRoom(t provider.T) {
	t.Parallel()

	t.Run("Should disband a room past its deadline", func(t provider.T) {
		t.Parallel()
		now := time.Now()
		clock := now
		r := initRoomResources(
			Config{Capacity: 4, RoomTTL: 20 * time.Minute},
			WithClock(func() time.Time { return clock }),
		)
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)

		clock = now.Add(time.Hour)
		assert.NoError(t, r.usecase.ExpireRoom(r.ctx, room.ID))

		_, err = r.rooms.Load(r.ctx, room.ID)
		assert.ErrorIs(t, err, ErrResourceNotFound)
		assert.Equal(t, model.StatusOnline, r.states.get(userID).Status)
	})

	t.Run("Should leave a live room untouched", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4, RoomTTL: time.Hour})
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)

		assert.NoError(t, r.usecase.ExpireRoom(r.ctx, room.ID))

		_, err = r.rooms.Load(r.ctx, room.ID)
		assert.NoError(t, err)
	})

	t.Run("Should report contention instead of waiting", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})
		userID := uuid.New()

		room, err := r.usecase.Join(r.ctx, userID, model.JoinRequest{Cuisines: []string{"thai"}})
		assert.NoError(t, err)

		assert.True(t, r.locks.TryLock(room.ID.String()))
		defer r.locks.Unlock(room.ID.String())

		assert.ErrorIs(t, r.usecase.ExpireRoom(r.ctx, room.ID), ErrLocked)
	})

	t.Run("Should ignore an already deleted room", func(t provider.T) {
		t.Parallel()
		r := initRoomResources(Config{Capacity: 4})

		assert.NoError(t, r.usecase.ExpireRoom(r.ctx, uuid.New()))
	})
}

func (s *UsecaseWaitingRoomSuite) TestResolvePreferences(t provider.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		req      model.JoinRequest
		stored   model.User
		expected model.Preferences
	}{
		{
			name: "Should prefer request values",
			req: model.JoinRequest{
				Cuisines: []string{"thai"},
				Budget:   budgetPtr(70),
				RadiusKm: budgetPtr(3),
			},
			stored: model.User{
				Cuisines: []string{"indian"},
				Budget:   budgetPtr(40),
				RadiusKm: budgetPtr(8),
			},
			expected: model.Preferences{Cuisines: []string{"thai"}, Budget: 70, RadiusKm: 3},
		},
		{
			name: "Should fall back to stored values",
			req:  model.JoinRequest{},
			stored: model.User{
				Cuisines: []string{"indian"},
				Budget:   budgetPtr(40),
				RadiusKm: budgetPtr(8),
			},
			expected: model.Preferences{Cuisines: []string{"indian"}, Budget: 40, RadiusKm: 8},
		},
		{
			name:   "Should fall back to defaults last",
			req:    model.JoinRequest{},
			stored: model.User{},
			expected: model.Preferences{
				Cuisines: DefaultCuisines,
				Budget:   DefaultBudget,
				RadiusKm: DefaultRadiusKm,
			},
		},
		{
			name: "Should mix sources per field",
			req:  model.JoinRequest{Budget: budgetPtr(90)},
			stored: model.User{
				Cuisines: []string{"indian"},
			},
			expected: model.Preferences{
				Cuisines: []string{"indian"},
				Budget:   90,
				RadiusKm: DefaultRadiusKm,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t provider.T) {
			t.Parallel()

			prefs := resolvePreferences(tc.req, tc.stored)

			assert.Equal(t, tc.expected, prefs)
		})
	}
}

func TestWaitingRoomSuite(t *testing.T) {
	suite.RunSuite(t, new(UsecaseWaitingRoomSuite))
}
