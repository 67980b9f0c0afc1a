package usecase_voting

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/metrics"
	"github.com/humanbelnik/feastfriends/core/internal/model"
)

type majority int

const (
	majorityNone majority = iota
	majorityYes
	majorityNo
)

// InitializeSequential switches the group into sequential mode and
// starts the first round. Calling it on a group that already has an
// active round is an idempotent no-op.
func (u *Usecase) InitializeSequential(ctx context.Context, groupID uuid.UUID) (*model.Group, error) {
	if err := u.locker.Lock(ctx, groupID.String()); err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	defer u.locker.Unlock(groupID.String())

	g, err := u.groups.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}
	switch g.Status {
	case model.GroupStatusSelected:
		return nil, ErrRestaurantSelected
	case model.GroupStatusAbandoned:
		return nil, ErrGroupClosed
	}

	if g.Mode == model.ModeSequential && g.Sequential != nil && g.Sequential.Round != nil {
		return g, nil
	}

	g.Mode = model.ModeSequential
	g.List = nil
	if g.Sequential == nil {
		g.Sequential = &model.Sequential{
			MaxRounds:    u.cfg.MaxRounds,
			RoundTimeout: u.cfg.RoundTimeout,
		}
	}
	if len(g.Sequential.Pool) == 0 {
		pool, err := u.restaurants.Candidates(ctx, g, u.cfg.PoolSize)
		if err != nil {
			return nil, errors.Join(ErrInternal, err)
		}
		g.Sequential.Pool = pool
	}

	next := u.nextCandidate(ctx, g)
	if next == nil {
		// Nothing to vote on at all.
		g.Status = model.GroupStatusAbandoned
		u.release(ctx, g)
	} else {
		u.startRound(g, *next)
	}

	if err := u.persist(ctx, g); err != nil {
		return nil, err
	}
	if g.Sequential.Round != nil {
		u.notifier.NotifyNewVotingRound(g.ID, g.Sequential.Round.Restaurant, len(g.Sequential.History))
	}
	u.notifyOutcome(g)
	return g, nil
}

// SubmitVote records a yes/no ballot for the current round. Changing a
// vote moves it between buckets; repeating the same value leaves the
// counts untouched. Majority is re-evaluated after every vote.
func (u *Usecase) SubmitVote(ctx context.Context, userID, groupID uuid.UUID, vote bool) (*model.Group, error) {
	if err := u.locker.Lock(ctx, groupID.String()); err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	defer u.locker.Unlock(groupID.String())

	g, err := u.groups.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}
	switch g.Status {
	case model.GroupStatusSelected:
		return nil, ErrRestaurantSelected
	case model.GroupStatusAbandoned:
		return nil, ErrGroupClosed
	}
	if !g.HasMember(userID) {
		return nil, ErrNotAMember
	}
	if g.Mode != model.ModeSequential || g.Sequential == nil ||
		g.Sequential.Round == nil || g.Sequential.Round.Status != model.RoundStatusActive {
		return nil, ErrNoActiveRound
	}

	round := g.Sequential.Round
	if prev, voted := round.Votes[userID]; !voted || prev != vote {
		if voted {
			if prev {
				round.Yes--
			} else {
				round.No--
			}
		}
		if vote {
			round.Yes++
		} else {
			round.No++
		}
		round.Votes[userID] = vote
	}

	advanced := u.resolveRound(ctx, g)

	if err := u.persist(ctx, g); err != nil {
		return nil, err
	}

	metrics.VotesSubmitted.WithLabelValues(model.ModeSequential).Inc()
	if advanced && g.Sequential.Round != nil {
		u.notifier.NotifyNewVotingRound(g.ID, g.Sequential.Round.Restaurant, len(g.Sequential.History))
	}
	u.notifyOutcome(g)
	return g, nil
}

// ExpireRound is the round-timeout entry point used by the sweeper. A
// held lock means an interactive operation is in flight: skip, the
// next tick retries.
func (u *Usecase) ExpireRound(ctx context.Context, groupID uuid.UUID) error {
	if !u.locker.TryLock(groupID.String()) {
		return ErrLocked
	}
	defer u.locker.Unlock(groupID.String())

	g, err := u.groups.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return ErrResourceNotFound
		}
		return errors.Join(ErrInternal, err)
	}
	if g.Status != model.GroupStatusVoting ||
		g.Mode != model.ModeSequential || g.Sequential == nil {
		return nil
	}
	round := g.Sequential.Round
	if round == nil || round.Status != model.RoundStatusActive || u.now().Before(round.ExpiresAt) {
		return nil
	}

	// Timeout with no majority behaves exactly like a majority no.
	round.Status = model.RoundStatusExpired
	advanced := u.advanceOrFinish(ctx, g)

	if err := u.persist(ctx, g); err != nil {
		return err
	}
	if advanced && g.Sequential.Round != nil {
		u.notifier.NotifyNewVotingRound(g.ID, g.Sequential.Round.Restaurant, len(g.Sequential.History))
	}
	u.notifyOutcome(g)
	return nil
}

// ForceComplete drives a group past its overall deadline to a terminal
// state: fallback selection for sequential mode, current winner (if any
// votes exist) for list mode, abandonment otherwise.
func (u *Usecase) ForceComplete(ctx context.Context, groupID uuid.UUID) error {
	if !u.locker.TryLock(groupID.String()) {
		return ErrLocked
	}
	defer u.locker.Unlock(groupID.String())

	g, err := u.groups.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return ErrResourceNotFound
		}
		return errors.Join(ErrInternal, err)
	}
	if g.Status != model.GroupStatusVoting {
		return nil
	}

	switch g.Mode {
	case model.ModeSequential:
		if g.Sequential != nil && g.Sequential.Round != nil {
			u.endRound(g)
		}
		u.fallbackSelection(ctx, g)
	case model.ModeList:
		if id, ok := winningChoice(g.List); ok {
			u.selectByID(ctx, g, id, "list")
		} else {
			g.Status = model.GroupStatusAbandoned
			u.release(ctx, g)
		}
	}

	if err := u.persist(ctx, g); err != nil {
		return err
	}
	u.notifyOutcome(g)
	return nil
}

// startRound resets the round state around the given candidate and
// appends its id to the history. A missing id is recorded as the empty
// string rather than failing.
func (u *Usecase) startRound(g *model.Group, r model.Restaurant) {
	now := u.now()
	g.Sequential.Round = &model.Round{
		Restaurant: r,
		Votes:      make(map[uuid.UUID]bool),
		StartedAt:  now,
		ExpiresAt:  now.Add(g.Sequential.RoundTimeout),
		Status:     model.RoundStatusActive,
	}
	g.Sequential.History = append(g.Sequential.History, r.ID)
}

// endRound folds the live round into the detailed history.
func (u *Usecase) endRound(g *model.Group) {
	round := g.Sequential.Round
	g.Sequential.HistoryVotes = append(g.Sequential.HistoryVotes, model.RoundRecord{
		RestaurantID: round.Restaurant.ID,
		Yes:          round.Yes,
		No:           round.No,
	})
	g.Sequential.Round = nil
}

// checkMajority applies floor(n/2)+1 over current members. With no
// active round there is never a majority.
func checkMajority(g *model.Group) majority {
	if g.Sequential == nil || g.Sequential.Round == nil {
		return majorityNone
	}
	threshold := g.MajorityThreshold()
	round := g.Sequential.Round
	switch {
	case round.Yes >= threshold:
		return majorityYes
	case round.No >= threshold:
		return majorityNo
	default:
		return majorityNone
	}
}

// resolveRound applies the majority outcome, if any. Returns true when
// a fresh round was started.
func (u *Usecase) resolveRound(ctx context.Context, g *model.Group) bool {
	switch checkMajority(g) {
	case majorityYes:
		selected := g.Sequential.Round.Restaurant
		u.endRound(g)
		u.selectRestaurant(ctx, g, selected, "majority")
		return false
	case majorityNo:
		return u.advanceOrFinish(ctx, g)
	default:
		return false
	}
}

// advanceOrFinish ends the current round and either starts the next
// untried candidate or, when the pool or round budget is exhausted,
// performs fallback selection.
func (u *Usecase) advanceOrFinish(ctx context.Context, g *model.Group) bool {
	u.endRound(g)

	if len(g.Sequential.History) >= g.Sequential.MaxRounds {
		u.fallbackSelection(ctx, g)
		return false
	}
	next := u.nextCandidate(ctx, g)
	if next == nil {
		u.fallbackSelection(ctx, g)
		return false
	}
	u.startRound(g, *next)
	return true
}

// nextCandidate asks the provider for a restaurant not yet tried. A
// provider failure is logged and treated as pool exhaustion.
func (u *Usecase) nextCandidate(ctx context.Context, g *model.Group) *model.Restaurant {
	next, err := u.restaurants.NextRestaurant(ctx, g, g.Sequential.History)
	if err != nil {
		u.logger.Error("candidate provider failed",
			slog.String("group_id", g.ID.String()),
			slog.String("error", err.Error()))
		return nil
	}
	return next
}

// fallbackSelection picks the candidate with the most cumulative
// yes-votes across the detailed history, ties broken by first
// occurrence. With no recorded yes-votes at all it falls back to the
// first pool candidate; an empty pool abandons the group.
func (u *Usecase) fallbackSelection(ctx context.Context, g *model.Group) {
	seq := g.Sequential

	var (
		bestID  string
		bestYes int
	)
	for _, rec := range seq.HistoryVotes {
		if rec.Yes > bestYes {
			bestID = rec.RestaurantID
			bestYes = rec.Yes
		}
	}

	if bestYes > 0 {
		u.selectRestaurant(ctx, g, u.restaurantFromPool(g, bestID), "fallback")
		return
	}
	if len(seq.Pool) > 0 {
		u.selectRestaurant(ctx, g, seq.Pool[0], "fallback")
		return
	}

	g.Status = model.GroupStatusAbandoned
	u.release(ctx, g)
}

// restaurantFromPool resolves an id recorded in history back to its
// pool entry, keeping at least the id when the entry is gone.
func (u *Usecase) restaurantFromPool(g *model.Group, id string) model.Restaurant {
	for _, r := range g.Sequential.Pool {
		if r.ID == id {
			return r
		}
	}
	return model.Restaurant{ID: id}
}

func (u *Usecase) selectRestaurant(ctx context.Context, g *model.Group, r model.Restaurant, outcome string) {
	g.Selected = &r
	g.Status = model.GroupStatusSelected
	u.release(ctx, g)
	metrics.RestaurantsSelected.WithLabelValues(outcome).Inc()
}

// selectByID enriches a bare restaurant id through the provider before
// selection; lookup failures keep the id-only record.
func (u *Usecase) selectByID(ctx context.Context, g *model.Group, id string, outcome string) {
	restaurant := model.Restaurant{ID: id}
	if r, err := u.restaurants.ByID(ctx, id); err == nil && r != nil {
		restaurant = *r
	}
	u.selectRestaurant(ctx, g, restaurant, outcome)
}
