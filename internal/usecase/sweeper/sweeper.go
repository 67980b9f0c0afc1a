package usecase_sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/humanbelnik/feastfriends/core/internal/metrics"
	usecase_voting "github.com/humanbelnik/feastfriends/core/internal/usecase/voting"
	usecase_waitingroom "github.com/humanbelnik/feastfriends/core/internal/usecase/waitingroom"
)

// Scanner lists documents past their deadlines. Reads are unlocked;
// each hit is revalidated by the engine under the per-id lock.
type Scanner interface {
	ExpiredGroupIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ExpiredRoundGroupIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ExpiredRoomIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type VotingEngine interface {
	ForceComplete(ctx context.Context, groupID uuid.UUID) error
	ExpireRound(ctx context.Context, groupID uuid.UUID) error
}

type RoomEngine interface {
	ExpireRoom(ctx context.Context, roomID uuid.UUID) error
}

type Config struct {
	GroupSweepInterval time.Duration
	RoundSweepInterval time.Duration
}

type Sweeper struct {
	scanner Scanner
	voting  VotingEngine
	rooms   RoomEngine
	cfg     Config

	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(scanner Scanner, voting VotingEngine, rooms RoomEngine, cfg Config, opts ...Option) *Sweeper {
	if cfg.GroupSweepInterval <= 0 {
		cfg.GroupSweepInterval = 30 * time.Second
	}
	if cfg.RoundSweepInterval <= 0 {
		cfg.RoundSweepInterval = 5 * time.Second
	}

	s := &Sweeper{
		scanner: scanner,
		voting:  voting,
		rooms:   rooms,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives both periodic sweeps until ctx is cancelled. Launch in a
// goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	groupTicker := time.NewTicker(s.cfg.GroupSweepInterval)
	defer groupTicker.Stop()
	roundTicker := time.NewTicker(s.cfg.RoundSweepInterval)
	defer roundTicker.Stop()

	s.logger.Info("expiry sweeper started",
		slog.Duration("group_interval", s.cfg.GroupSweepInterval),
		slog.Duration("round_interval", s.cfg.RoundSweepInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-groupTicker.C:
			if err := s.SweepGroups(ctx); err != nil {
				s.logger.Error("group sweep finished with errors", slog.String("error", err.Error()))
			}
			if err := s.SweepRooms(ctx); err != nil {
				s.logger.Error("room sweep finished with errors", slog.String("error", err.Error()))
			}
		case <-roundTicker.C:
			if err := s.SweepRounds(ctx); err != nil {
				s.logger.Error("round sweep finished with errors", slog.String("error", err.Error()))
			}
		}
	}
}

// SweepGroups forces groups past their overall deadline to a terminal
// state. Contended or conflicted groups are dropped for this tick; one
// group's failure never blocks the rest.
func (s *Sweeper) SweepGroups(ctx context.Context) error {
	ids, err := s.scanner.ExpiredGroupIDs(ctx, s.now())
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, id := range ids {
		if err := s.voting.ForceComplete(ctx, id); err != nil {
			if s.skip("groups", id, err) {
				continue
			}
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// SweepRounds advances sequential rounds whose expiry has passed,
// exactly as a round timeout would.
func (s *Sweeper) SweepRounds(ctx context.Context) error {
	ids, err := s.scanner.ExpiredRoundGroupIDs(ctx, s.now())
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, id := range ids {
		if err := s.voting.ExpireRound(ctx, id); err != nil {
			if s.skip("rounds", id, err) {
				continue
			}
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// SweepRooms disbands waiting rooms past their completion deadline.
func (s *Sweeper) SweepRooms(ctx context.Context) error {
	ids, err := s.scanner.ExpiredRoomIDs(ctx, s.now())
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, id := range ids {
		if err := s.rooms.ExpireRoom(ctx, id); err != nil {
			if errors.Is(err, usecase_waitingroom.ErrLocked) || errors.Is(err, usecase_waitingroom.ErrVersionConflict) {
				metrics.SweepSkips.WithLabelValues("rooms", reason(err)).Inc()
				continue
			}
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// skip reports whether the error is the expected lock/version noise a
// sweep swallows until the next tick.
func (s *Sweeper) skip(sweep string, id uuid.UUID, err error) bool {
	if errors.Is(err, usecase_voting.ErrLocked) || errors.Is(err, usecase_voting.ErrVersionConflict) {
		s.logger.Debug("sweep skipped document",
			slog.String("sweep", sweep),
			slog.String("id", id.String()),
			slog.String("reason", reason(err)))
		metrics.SweepSkips.WithLabelValues(sweep, reason(err)).Inc()
		return true
	}
	return false
}

func reason(err error) string {
	if errors.Is(err, usecase_voting.ErrLocked) || errors.Is(err, usecase_waitingroom.ErrLocked) {
		return "locked"
	}
	return "version_conflict"
}
