package usecase_voting

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/metrics"
	"github.com/humanbelnik/feastfriends/core/internal/model"
)

// SubmitListVote records a free-choice ballot: the member picks any
// restaurant id at any time. A changed pick moves the tally from the
// previous choice (floored at zero) to the new one. Once every member
// has voted the current winner is selected.
func (u *Usecase) SubmitListVote(ctx context.Context, userID, groupID uuid.UUID, restaurantID string) (*model.Group, error) {
	if restaurantID == "" {
		return nil, ErrInvalidInput
	}
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
	if g.Mode != model.ModeList || g.List == nil {
		return nil, ErrWrongMode
	}

	ballot := g.List
	if prev, voted := ballot.Choices[userID]; voted && prev != restaurantID {
		if ballot.Tally[prev] > 0 {
			ballot.Tally[prev]--
		}
	}
	if _, seen := ballot.Tally[restaurantID]; !seen {
		ballot.Order = append(ballot.Order, restaurantID)
	}
	if prev, voted := ballot.Choices[userID]; !voted || prev != restaurantID {
		ballot.Tally[restaurantID]++
	}
	ballot.Choices[userID] = restaurantID

	u.finishListIfComplete(ctx, g)

	if err := u.persist(ctx, g); err != nil {
		return nil, err
	}
	metrics.VotesSubmitted.WithLabelValues(model.ModeList).Inc()
	u.notifyOutcome(g)
	return g, nil
}

// retractListVote removes a departing member's choice from the ballot.
func (u *Usecase) retractListVote(g *model.Group, userID uuid.UUID) {
	ballot := g.List
	if ballot == nil {
		return
	}
	prev, voted := ballot.Choices[userID]
	if !voted {
		return
	}
	delete(ballot.Choices, userID)
	if ballot.Tally[prev] > 0 {
		ballot.Tally[prev]--
	}
}

// finishListIfComplete selects the winner once every current member has
// voted. Departures can complete a ballot the same way a last vote does.
func (u *Usecase) finishListIfComplete(ctx context.Context, g *model.Group) {
	if g.List == nil || len(g.List.Choices) == 0 {
		return
	}
	if len(g.List.Choices) != len(g.Members) {
		return
	}
	if id, ok := winningChoice(g.List); ok {
		u.selectByID(ctx, g, id, "list")
	}
}

// winningChoice returns the id with the highest tally, ties broken by
// first-seen order, or false when no votes exist.
func winningChoice(ballot *model.ListBallot) (string, bool) {
	if ballot == nil {
		return "", false
	}
	var (
		winner string
		best   int
	)
	for _, id := range ballot.Order {
		if ballot.Tally[id] > best {
			winner = id
			best = ballot.Tally[id]
		}
	}
	return winner, best > 0
}
