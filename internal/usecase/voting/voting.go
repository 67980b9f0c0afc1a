package usecase_voting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/metrics"
	"github.com/humanbelnik/feastfriends/core/internal/model"
)

var (
	ErrResourceNotFound   = errors.New("no such resource")
	ErrNotAMember         = errors.New("user is not a member of the group")
	ErrNoActiveRound      = errors.New("no active voting round")
	ErrWrongMode          = errors.New("operation does not match the group's voting mode")
	ErrRestaurantSelected = errors.New("restaurant already selected")
	ErrGroupClosed        = errors.New("group is closed")
	ErrVersionConflict    = errors.New("stale group version")
	ErrLocked             = errors.New("group is locked by another operation")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
)

//go:generate mockery --name=GroupRepository --output=./mocks/group/repository --filename=repository.go
type GroupRepository interface {
	Create(ctx context.Context, g *model.Group) error
	Load(ctx context.Context, id uuid.UUID) (*model.Group, error)
	// Update writes with the version read at load time and bumps it on
	// success. Zero rows touched surfaces as ErrVersionConflict.
	Update(ctx context.Context, g *model.Group) error
	Delete(ctx context.Context, id uuid.UUID) error
}

//go:generate mockery --name=RestaurantProvider --output=./mocks/group/provider --filename=provider.go
type RestaurantProvider interface {
	// Candidates returns the initial pool ranked by the group's
	// aggregate preferences.
	Candidates(ctx context.Context, g *model.Group, limit int) ([]model.Restaurant, error)
	// NextRestaurant returns the best candidate not in excludeIDs, or
	// nil when the pool is exhausted.
	NextRestaurant(ctx context.Context, g *model.Group, excludeIDs []string) (*model.Restaurant, error)
	// ByID is a best-effort lookup used to enrich list-mode winners.
	ByID(ctx context.Context, id string) (*model.Restaurant, error)
}

// Notifier hooks are fire-and-forget: implementations log their own
// failures and never block a state transition.
type Notifier interface {
	NotifyGroupReady(groupID uuid.UUID, members []uuid.UUID)
	NotifyNewVotingRound(groupID uuid.UUID, restaurant model.Restaurant, roundNumber int)
	NotifyRestaurantSelected(groupID uuid.UUID, restaurant model.Restaurant)
	NotifyMemberLeft(groupID uuid.UUID, userID uuid.UUID)
	NotifyGroupExpired(groupID uuid.UUID)
}

type UserStateStore interface {
	Set(ctx context.Context, userID uuid.UUID, state model.UserState) error
}

type Locker interface {
	Lock(ctx context.Context, id string) error
	TryLock(id string) bool
	Unlock(id string)
}

type Config struct {
	DefaultMode  model.VotingMode
	PoolSize     int
	MaxRounds    int
	RoundTimeout time.Duration
	GroupTTL     time.Duration
}

type Usecase struct {
	groups      GroupRepository
	restaurants RestaurantProvider
	userStates  UserStateStore
	notifier    Notifier
	locker      Locker
	cfg         Config

	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Usecase)

func WithLogger(logger *slog.Logger) Option {
	return func(u *Usecase) {
		u.logger = logger
	}
}

// WithClock overrides the time source. Tests use it to drive timeouts.
func WithClock(now func() time.Time) Option {
	return func(u *Usecase) {
		u.now = now
	}
}

func New(
	groups GroupRepository,
	restaurants RestaurantProvider,
	userStates UserStateStore,
	notifier Notifier,
	locker Locker,
	cfg Config,
	opts ...Option,
) *Usecase {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	if cfg.RoundTimeout <= 0 {
		cfg.RoundTimeout = 60 * time.Second
	}
	if cfg.GroupTTL <= 0 {
		cfg.GroupTTL = 30 * time.Minute
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = model.ModeSequential
	}

	u := &Usecase{
		groups:      groups,
		restaurants: restaurants,
		userStates:  userStates,
		notifier:    notifier,
		locker:      locker,
		cfg:         cfg,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// CreateFromRoom snapshots the room's member set into a new group and,
// in sequential mode, starts round 1 immediately. Invoked by the
// waiting-room lifecycle while it still holds the room lock, so the
// fresh group needs no lock of its own.
func (u *Usecase) CreateFromRoom(ctx context.Context, room *model.Room) (*model.Group, error) {
	members := make([]uuid.UUID, len(room.Members))
	copy(members, room.Members)

	g := &model.Group{
		ID:        uuid.New(),
		RoomID:    room.ID,
		Members:   members,
		Cuisines:  append([]string(nil), room.Cuisines...),
		AvgBudget: room.AvgBudget,
		AvgRadius: room.AvgRadius,
		Location:  room.Location,
		Mode:      u.cfg.DefaultMode,
		Status:    model.GroupStatusVoting,
		Deadline:  u.now().Add(u.cfg.GroupTTL),
	}

	switch g.Mode {
	case model.ModeList:
		g.List = &model.ListBallot{
			Choices: make(map[uuid.UUID]string),
			Tally:   make(map[string]int),
		}
	case model.ModeSequential:
		pool, err := u.restaurants.Candidates(ctx, g, u.cfg.PoolSize)
		if err != nil {
			// Collaborator failure: the group still forms, a round
			// starts once the pool can be fetched.
			u.logger.Error("failed to fetch candidate pool",
				slog.String("group_id", g.ID.String()),
				slog.String("error", err.Error()))
			pool = nil
		}
		g.Sequential = &model.Sequential{
			Pool:         pool,
			MaxRounds:    u.cfg.MaxRounds,
			RoundTimeout: u.cfg.RoundTimeout,
		}
		if len(pool) > 0 {
			u.startRound(g, pool[0])
		}
	default:
		return nil, ErrInvalidInput
	}

	if err := u.groups.Create(ctx, g); err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	for _, id := range g.Members {
		if err := u.userStates.Set(ctx, id, model.UserState{
			Status:  model.StatusInGroup,
			GroupID: g.ID.String(),
		}); err != nil {
			u.logger.Error("failed to set user state",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()))
		}
	}

	metrics.GroupsFormed.Inc()
	u.notifier.NotifyGroupReady(g.ID, g.Members)
	if g.Sequential != nil && g.Sequential.Round != nil {
		u.notifier.NotifyNewVotingRound(g.ID, g.Sequential.Round.Restaurant, len(g.Sequential.History))
	}
	return g, nil
}

// Status loads the group read-only, no lock taken.
func (u *Usecase) Status(ctx context.Context, groupID uuid.UUID) (*model.Group, error) {
	g, err := u.groups.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}
	return g, nil
}

// LeaveGroup drops the member and rebuilds derived vote tallies from
// the remaining entries, then re-evaluates majority: a smaller member
// set lowers the threshold, so departure alone can end a round. An
// emptied group is abandoned and removed.
func (u *Usecase) LeaveGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	if err := u.locker.Lock(ctx, groupID.String()); err != nil {
		return errors.Join(ErrInternal, err)
	}
	defer u.locker.Unlock(groupID.String())

	g, err := u.groups.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return ErrResourceNotFound
		}
		return errors.Join(ErrInternal, err)
	}
	switch g.Status {
	case model.GroupStatusSelected:
		return ErrRestaurantSelected
	case model.GroupStatusAbandoned:
		return ErrGroupClosed
	}
	if !g.HasMember(userID) {
		return ErrNotAMember
	}

	g.RemoveMember(userID)

	if err := u.userStates.Set(ctx, userID, model.UserState{Status: model.StatusOnline}); err != nil {
		u.logger.Error("failed to reset user state",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}

	if len(g.Members) == 0 {
		if err := u.groups.Delete(ctx, groupID); err != nil {
			return errors.Join(ErrInternal, err)
		}
		u.notifier.NotifyMemberLeft(groupID, userID)
		u.notifier.NotifyGroupExpired(groupID)
		return nil
	}

	var advanced bool
	if g.Mode == model.ModeSequential && g.Sequential != nil && g.Sequential.Round != nil {
		round := g.Sequential.Round
		delete(round.Votes, userID)
		round.RecountVotes()
		advanced = u.resolveRound(ctx, g)
	}
	if g.Mode == model.ModeList {
		u.retractListVote(g, userID)
		u.finishListIfComplete(ctx, g)
	}

	if err := u.persist(ctx, g); err != nil {
		return err
	}
	u.notifier.NotifyMemberLeft(groupID, userID)
	if advanced && g.Sequential.Round != nil {
		u.notifier.NotifyNewVotingRound(g.ID, g.Sequential.Round.Restaurant, len(g.Sequential.History))
	}
	u.notifyOutcome(g)
	return nil
}

// persist maps repository failures onto the usecase taxonomy.
func (u *Usecase) persist(ctx context.Context, g *model.Group) error {
	if err := u.groups.Update(ctx, g); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return ErrVersionConflict
		}
		return errors.Join(ErrInternal, err)
	}
	return nil
}

// notifyOutcome fires terminal-state hooks after a successful persist.
func (u *Usecase) notifyOutcome(g *model.Group) {
	switch {
	case g.Status == model.GroupStatusSelected && g.Selected != nil:
		u.notifier.NotifyRestaurantSelected(g.ID, *g.Selected)
	case g.Status == model.GroupStatusAbandoned:
		u.notifier.NotifyGroupExpired(g.ID)
	}
}

// release moves every remaining member back to ONLINE once the group
// reaches a terminal state.
func (u *Usecase) release(ctx context.Context, g *model.Group) {
	for _, id := range g.Members {
		if err := u.userStates.Set(ctx, id, model.UserState{Status: model.StatusOnline}); err != nil {
			u.logger.Error("failed to reset user state",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()))
		}
	}
}
