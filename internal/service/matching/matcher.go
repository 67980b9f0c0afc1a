package matching

import "github.com/humanbelnik/feastfriends/core/internal/model"

// BestRoom selects the highest-scoring eligible room, ties broken by
// first-seen order. Returns false when no room clears MinMatchScore;
// the caller creates a new room in that case. Pure selection, no
// mutation.
func BestRoom(rooms []*model.Room, prefs model.Preferences) (*model.Room, bool) {
	var (
		best      *model.Room
		bestScore float64
	)
	for _, room := range rooms {
		if room.Status != model.RoomStatusWaiting {
			continue
		}
		score, ok := Score(room, prefs)
		if !ok || score < MinMatchScore {
			continue
		}
		if best == nil || score > bestScore {
			best = room
			bestScore = score
		}
	}
	return best, best != nil
}
