package usecase_sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	usecase_voting "github.com/humanbelnik/feastfriends/core/internal/usecase/voting"
	usecase_waitingroom "github.com/humanbelnik/feastfriends/core/internal/usecase/waitingroom"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
)

type SweeperSuite struct {
	suite.Suite
}

type fakeScanner struct {
	groupIDs []uuid.UUID
	roundIDs []uuid.UUID
	roomIDs  []uuid.UUID
	err      error
}

func (f *fakeScanner) ExpiredGroupIDs(context.Context, time.Time) ([]uuid.UUID, error) {
	return f.groupIDs, f.err
}

func (f *fakeScanner) ExpiredRoundGroupIDs(context.Context, time.Time) ([]uuid.UUID, error) {
	return f.roundIDs, f.err
}

func (f *fakeScanner) ExpiredRoomIDs(context.Context, time.Time) ([]uuid.UUID, error) {
	return f.roomIDs, f.err
}

type fakeVotingEngine struct {
	mu         sync.Mutex
	completed  []uuid.UUID
	expired    []uuid.UUID
	completeFn func(uuid.UUID) error
	expireFn   func(uuid.UUID) error
}

func (f *fakeVotingEngine) ForceComplete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	if f.completeFn != nil {
		return f.completeFn(id)
	}
	return nil
}

func (f *fakeVotingEngine) ExpireRound(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, id)
	if f.expireFn != nil {
		return f.expireFn(id)
	}
	return nil
}

type fakeRoomEngine struct {
	mu       sync.Mutex
	expired  []uuid.UUID
	expireFn func(uuid.UUID) error
}

func (f *fakeRoomEngine) ExpireRoom(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, id)
	if f.expireFn != nil {
		return f.expireFn(id)
	}
	return nil
}

func (s *SweeperSuite) TestSweepGroups(t provider.T) {
	t.Parallel()

	t.Run("Should force complete every expired group", func(t provider.T) {
		t.Parallel()
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		voting := &fakeVotingEngine{}
		sw := New(&fakeScanner{groupIDs: ids}, voting, &fakeRoomEngine{}, Config{})

		assert.NoError(t, sw.SweepGroups(context.Background()))
		assert.Equal(t, ids, voting.completed)
	})

	t.Run("Should swallow lock contention and keep going", func(t provider.T) {
		t.Parallel()
		locked := uuid.New()
		other := uuid.New()
		voting := &fakeVotingEngine{
			completeFn: func(id uuid.UUID) error {
				if id == locked {
					return usecase_voting.ErrLocked
				}
				return nil
			},
		}
		sw := New(&fakeScanner{groupIDs: []uuid.UUID{locked, other}}, voting, &fakeRoomEngine{}, Config{})

		assert.NoError(t, sw.SweepGroups(context.Background()))
		assert.Len(t, voting.completed, 2)
	})

	t.Run("Should swallow version conflicts", func(t provider.T) {
		t.Parallel()
		voting := &fakeVotingEngine{
			completeFn: func(uuid.UUID) error { return usecase_voting.ErrVersionConflict },
		}
		sw := New(&fakeScanner{groupIDs: []uuid.UUID{uuid.New()}}, voting, &fakeRoomEngine{}, Config{})

		assert.NoError(t, sw.SweepGroups(context.Background()))
	})

	t.Run("Should collect real failures without stopping", func(t provider.T) {
		t.Parallel()
		boom := errors.New("boom")
		failing := uuid.New()
		fine := uuid.New()
		voting := &fakeVotingEngine{
			completeFn: func(id uuid.UUID) error {
				if id == failing {
					return boom
				}
				return nil
			},
		}
		sw := New(&fakeScanner{groupIDs: []uuid.UUID{failing, fine}}, voting, &fakeRoomEngine{}, Config{})

		err := sw.SweepGroups(context.Background())

		assert.ErrorIs(t, err, boom)
		assert.Len(t, voting.completed, 2)
	})

	t.Run("Should surface scanner failures", func(t provider.T) {
		t.Parallel()
		boom := errors.New("scan failed")
		sw := New(&fakeScanner{err: boom}, &fakeVotingEngine{}, &fakeRoomEngine{}, Config{})

		assert.ErrorIs(t, sw.SweepGroups(context.Background()), boom)
	})
}

func (s *SweeperSuite) TestSweepRounds(t provider.T) {
	t.Parallel()

	t.Run("Should expire every timed out round", func(t provider.T) {
		t.Parallel()
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		voting := &fakeVotingEngine{}
		sw := New(&fakeScanner{roundIDs: ids}, voting, &fakeRoomEngine{}, Config{})

		assert.NoError(t, sw.SweepRounds(context.Background()))
		assert.Equal(t, ids, voting.expired)
	})

	t.Run("Should swallow lock contention", func(t provider.T) {
		t.Parallel()
		voting := &fakeVotingEngine{
			expireFn: func(uuid.UUID) error { return usecase_voting.ErrLocked },
		}
		sw := New(&fakeScanner{roundIDs: []uuid.UUID{uuid.New()}}, voting, &fakeRoomEngine{}, Config{})

		assert.NoError(t, sw.SweepRounds(context.Background()))
	})
}

func (s *SweeperSuite) TestSweepRooms(t provider.T) {
	t.Parallel()

	t.Run("Should disband every expired room", func(t provider.T) {
		t.Parallel()
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		rooms := &fakeRoomEngine{}
		sw := New(&fakeScanner{roomIDs: ids}, &fakeVotingEngine{}, rooms, Config{})

		assert.NoError(t, sw.SweepRooms(context.Background()))
		assert.Equal(t, ids, rooms.expired)
	})

	t.Run("Should swallow lock contention on rooms", func(t provider.T) {
		t.Parallel()
		rooms := &fakeRoomEngine{
			expireFn: func(uuid.UUID) error { return usecase_waitingroom.ErrLocked },
		}
		sw := New(&fakeScanner{roomIDs: []uuid.UUID{uuid.New()}}, &fakeVotingEngine{}, rooms, Config{})

		assert.NoError(t, sw.SweepRooms(context.Background()))
	})
}

func (s *SweeperSuite) TestRun(t provider.T) {
	t.Parallel()

	t.Run("Should stop when the context is cancelled", func(t provider.T) {
		t.Parallel()
		sw := New(&fakeScanner{}, &fakeVotingEngine{}, &fakeRoomEngine{}, Config{
			GroupSweepInterval: 10 * time.Millisecond,
			RoundSweepInterval: 10 * time.Millisecond,
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sw.Run(ctx)
			close(done)
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("sweeper did not stop on cancel")
		}
	})
}

func TestSweeperSuite(t *testing.T) {
	suite.RunSuite(t, new(SweeperSuite))
}
