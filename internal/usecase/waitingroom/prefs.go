package usecase_waitingroom

import "github.com/humanbelnik/feastfriends/core/internal/model"

const (
	DefaultBudget   = 50.0
	DefaultRadiusKm = 5.0
)

// DefaultCuisines applies only when neither the request nor the stored
// profile names any cuisine.
var DefaultCuisines = []string{"italian", "japanese", "mexican", "indian", "thai"}

// resolvePreferences applies the ordered fallback chain: request value,
// then stored user value, then hard default. Coordinates come from the
// request only; absent coordinates skip location matching entirely.
func resolvePreferences(req model.JoinRequest, stored model.User) model.Preferences {
	prefs := model.Preferences{
		Budget:   DefaultBudget,
		RadiusKm: DefaultRadiusKm,
		Location: req.Location,
	}

	switch {
	case len(req.Cuisines) > 0:
		prefs.Cuisines = req.Cuisines
	case len(stored.Cuisines) > 0:
		prefs.Cuisines = stored.Cuisines
	default:
		prefs.Cuisines = DefaultCuisines
	}

	if req.Budget != nil {
		prefs.Budget = *req.Budget
	} else if stored.Budget != nil {
		prefs.Budget = *stored.Budget
	}

	if req.RadiusKm != nil {
		prefs.RadiusKm = *req.RadiusKm
	} else if stored.RadiusKm != nil {
		prefs.RadiusKm = *stored.RadiusKm
	}

	return prefs
}
