package usecase_waitingroom

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/metrics"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	"github.com/humanbelnik/feastfriends/core/internal/service/matching"
)

var (
	ErrResourceNotFound = errors.New("no such resource")
	ErrAlreadyInGroup   = errors.New("user is already in an active group")
	ErrVersionConflict  = errors.New("stale room version")
	ErrLocked           = errors.New("room is locked by another operation")
	ErrInternal         = errors.New("internal error")

	// errRetryJoin restarts room selection after the locked re-read
	// shows the chosen room is no longer eligible.
	errRetryJoin = errors.New("room no longer eligible")
)

const joinRetries = 3

//go:generate mockery --name=RoomRepository --output=./mocks/room/repository --filename=repository.go
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	Load(ctx context.Context, id uuid.UUID) (*model.Room, error)
	// Update writes with the version read at load time and bumps it on
	// success. Zero rows touched surfaces as ErrVersionConflict.
	Update(ctx context.Context, room *model.Room) error
	Delete(ctx context.Context, id uuid.UUID) error
	// LoadWaiting returns rooms in WAITING status with free capacity.
	LoadWaiting(ctx context.Context) ([]*model.Room, error)
}

type UserRepository interface {
	Load(ctx context.Context, id uuid.UUID) (model.User, error)
	Save(ctx context.Context, user model.User) error
}

type UserStateStore interface {
	Get(ctx context.Context, userID uuid.UUID) (model.UserState, error)
	Set(ctx context.Context, userID uuid.UUID, state model.UserState) error
}

// GroupCreator converts a full room into a voting group. It runs
// inside the same locked operation as the join that filled the room.
type GroupCreator interface {
	CreateFromRoom(ctx context.Context, room *model.Room) (*model.Group, error)
}

type Notifier interface {
	NotifyRoomUpdate(roomID uuid.UUID, members int)
	NotifyMemberJoined(roomID uuid.UUID, userID uuid.UUID)
	NotifyMemberLeft(roomID uuid.UUID, userID uuid.UUID)
}

type Locker interface {
	Lock(ctx context.Context, id string) error
	TryLock(id string) bool
	Unlock(id string)
}

type Config struct {
	Capacity int
	RoomTTL  time.Duration
}

type Usecase struct {
	rooms      RoomRepository
	users      UserRepository
	userStates UserStateStore
	groups     GroupCreator
	notifier   Notifier
	locker     Locker
	cfg        Config

	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Usecase)

func WithLogger(logger *slog.Logger) Option {
	return func(u *Usecase) {
		u.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *Usecase) {
		u.now = now
	}
}

func New(
	rooms RoomRepository,
	users UserRepository,
	userStates UserStateStore,
	groups GroupCreator,
	notifier Notifier,
	locker Locker,
	cfg Config,
	opts ...Option,
) *Usecase {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10
	}
	if cfg.RoomTTL <= 0 {
		cfg.RoomTTL = 20 * time.Minute
	}

	u := &Usecase{
		rooms:      rooms,
		users:      users,
		userStates: userStates,
		groups:     groups,
		notifier:   notifier,
		locker:     locker,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Join places the user into the best compatible waiting room or creates
// a fresh one. A user already in a room rejoins idempotently with their
// stored preferences refreshed; a user in an active group is rejected.
func (u *Usecase) Join(ctx context.Context, userID uuid.UUID, req model.JoinRequest) (*model.Room, error) {
	state, err := u.userStates.Get(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	if state.Status == model.StatusInGroup && state.GroupID != "" {
		return nil, ErrAlreadyInGroup
	}

	stored, err := u.users.Load(ctx, userID)
	if err != nil && !errors.Is(err, ErrResourceNotFound) {
		return nil, errors.Join(ErrInternal, err)
	}
	prefs := resolvePreferences(req, stored)

	if err := u.users.Save(ctx, model.User{
		ID:       userID,
		Cuisines: prefs.Cuisines,
		Budget:   &prefs.Budget,
		RadiusKm: &prefs.RadiusKm,
	}); err != nil {
		u.logger.Error("failed to refresh stored preferences",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}

	// Idempotent rejoin: clients call join again after restarts.
	if state.Status == model.StatusInWaitingRoom && state.RoomID != "" {
		if roomID, parseErr := uuid.Parse(state.RoomID); parseErr == nil {
			room, loadErr := u.rooms.Load(ctx, roomID)
			if loadErr == nil && room.HasMember(userID) {
				return room, nil
			}
			// Stale reference, fall through to fresh matching.
		}
	}

	for attempt := 0; attempt < joinRetries; attempt++ {
		rooms, err := u.rooms.LoadWaiting(ctx)
		if err != nil {
			return nil, errors.Join(ErrInternal, err)
		}
		best, ok := matching.BestRoom(rooms, prefs)
		if !ok {
			return u.createRoom(ctx, userID, prefs)
		}

		room, err := u.admit(ctx, best.ID, userID, prefs)
		if errors.Is(err, errRetryJoin) {
			continue
		}
		return room, err
	}
	return u.createRoom(ctx, userID, prefs)
}

// admit re-reads the chosen room under its lock, adds the member, and
// recomputes the rolling averages. Filling the last seat flips the room
// to MATCHED and spawns the group atomically with this operation.
func (u *Usecase) admit(ctx context.Context, roomID, userID uuid.UUID, prefs model.Preferences) (*model.Room, error) {
	if err := u.locker.Lock(ctx, roomID.String()); err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	defer u.locker.Unlock(roomID.String())

	room, err := u.rooms.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, errRetryJoin
		}
		return nil, errors.Join(ErrInternal, err)
	}
	if room.Status != model.RoomStatusWaiting || len(room.Members) >= u.cfg.Capacity {
		return nil, errRetryJoin
	}
	if room.HasMember(userID) {
		return room, nil
	}

	n := float64(len(room.Members))
	room.Members = append(room.Members, userID)
	room.AvgBudget = (room.AvgBudget*n + prefs.Budget) / (n + 1)
	room.AvgRadius = (room.AvgRadius*n + prefs.RadiusKm) / (n + 1)
	room.Cuisines = mergeCuisines(room.Cuisines, prefs.Cuisines)
	if prefs.Location != nil {
		m := float64(room.LocationMembers)
		if room.Location == nil {
			room.Location = &model.GeoPoint{}
			m = 0
		}
		room.Location.Lat = (room.Location.Lat*m + prefs.Location.Lat) / (m + 1)
		room.Location.Lon = (room.Location.Lon*m + prefs.Location.Lon) / (m + 1)
		room.LocationMembers++
	}

	full := len(room.Members) >= u.cfg.Capacity
	if full {
		room.Status = model.RoomStatusMatched
	}

	if err := u.rooms.Update(ctx, room); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, errRetryJoin
		}
		return nil, errors.Join(ErrInternal, err)
	}

	if full {
		// Group creation sets every member's state to IN_GROUP.
		if _, err := u.groups.CreateFromRoom(ctx, room); err != nil {
			return nil, errors.Join(ErrInternal, err)
		}
	} else if err := u.userStates.Set(ctx, userID, model.UserState{
		Status: model.StatusInWaitingRoom,
		RoomID: room.ID.String(),
	}); err != nil {
		u.logger.Error("failed to set user state",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}

	metrics.RoomJoins.Inc()
	u.notifier.NotifyMemberJoined(room.ID, userID)
	u.notifier.NotifyRoomUpdate(room.ID, len(room.Members))
	return room, nil
}

func (u *Usecase) createRoom(ctx context.Context, userID uuid.UUID, prefs model.Preferences) (*model.Room, error) {
	room := &model.Room{
		ID:        uuid.New(),
		Members:   []uuid.UUID{userID},
		Cuisines:  append([]string(nil), prefs.Cuisines...),
		AvgBudget: prefs.Budget,
		AvgRadius: prefs.RadiusKm,
		Deadline:  u.now().Add(u.cfg.RoomTTL),
		Status:    model.RoomStatusWaiting,
	}
	if prefs.Location != nil {
		loc := *prefs.Location
		room.Location = &loc
		room.LocationMembers = 1
	}

	if err := u.rooms.Create(ctx, room); err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	if err := u.userStates.Set(ctx, userID, model.UserState{
		Status: model.StatusInWaitingRoom,
		RoomID: room.ID.String(),
	}); err != nil {
		u.logger.Error("failed to set user state",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}

	metrics.RoomsCreated.Inc()
	u.notifier.NotifyRoomUpdate(room.ID, 1)
	return room, nil
}

// Leave removes the member and deletes the room once it empties out.
// Leaving a room that no longer exists is a successful no-op cleanup of
// stale user state. A room that already matched is immutable history:
// the member now belongs to the group and leaves through it, so the
// call is a no-op that keeps the IN_GROUP state intact. Averages are
// not recomputed on departure.
func (u *Usecase) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	if err := u.locker.Lock(ctx, roomID.String()); err != nil {
		return errors.Join(ErrInternal, err)
	}
	defer u.locker.Unlock(roomID.String())

	resetState := func() {
		if err := u.userStates.Set(ctx, userID, model.UserState{Status: model.StatusOnline}); err != nil {
			u.logger.Error("failed to reset user state",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
		}
	}

	room, err := u.rooms.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			resetState()
			return nil
		}
		return errors.Join(ErrInternal, err)
	}
	if room.Status != model.RoomStatusWaiting {
		return nil
	}
	if !room.HasMember(userID) {
		resetState()
		return nil
	}

	room.RemoveMember(userID)
	if len(room.Members) == 0 {
		if err := u.rooms.Delete(ctx, roomID); err != nil {
			return errors.Join(ErrInternal, err)
		}
	} else if err := u.rooms.Update(ctx, room); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ErrVersionConflict
		}
		return errors.Join(ErrInternal, err)
	}

	resetState()
	u.notifier.NotifyMemberLeft(roomID, userID)
	u.notifier.NotifyRoomUpdate(roomID, len(room.Members))
	return nil
}

// ExpireRoom disbands a waiting room past its completion deadline.
// Sweeper entry point: skips on lock contention.
func (u *Usecase) ExpireRoom(ctx context.Context, roomID uuid.UUID) error {
	if !u.locker.TryLock(roomID.String()) {
		return ErrLocked
	}
	defer u.locker.Unlock(roomID.String())

	room, err := u.rooms.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil
		}
		return errors.Join(ErrInternal, err)
	}
	if room.Status != model.RoomStatusWaiting || u.now().Before(room.Deadline) {
		return nil
	}

	if err := u.rooms.Delete(ctx, roomID); err != nil {
		return errors.Join(ErrInternal, err)
	}
	for _, id := range room.Members {
		if err := u.userStates.Set(ctx, id, model.UserState{Status: model.StatusOnline}); err != nil {
			u.logger.Error("failed to reset user state",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()))
		}
	}
	u.notifier.NotifyRoomUpdate(roomID, 0)
	return nil
}

func (u *Usecase) Status(ctx context.Context, roomID uuid.UUID) (*model.Room, error) {
	room, err := u.rooms.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}
	return room, nil
}

func (u *Usecase) Members(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	room, err := u.Status(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Members, nil
}

// mergeCuisines unions the user's cuisines into the room's aggregate
// set, preserving first-seen order.
func mergeCuisines(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[c] = struct{}{}
	}
	for _, c := range incoming {
		if _, ok := seen[c]; !ok {
			existing = append(existing, c)
			seen[c] = struct{}{}
		}
	}
	return existing
}
