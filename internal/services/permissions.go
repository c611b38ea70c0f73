package services

import (
	"raceroom/internal/models"
)

// Capability checks are pure functions over preloaded records, invoked at
// the top of every mutating action. They never consult cached results.

// CanEdit reports whether the user controls the category.
func CanEdit(category *models.Category, user *models.User) bool {
	if user == nil || !user.Active {
		return false
	}
	return user.Superuser || user.ID == category.OwnerID
}

// CanModerate reports whether the user can moderate races in the category.
func CanModerate(category *models.Category, user *models.User) bool {
	if user == nil || !user.Active {
		return false
	}
	if user.Superuser || user.ID == category.OwnerID {
		return true
	}
	for _, m := range category.Moderators {
		if m.ID == user.ID {
			return true
		}
	}
	return false
}

// CanStartRace reports whether the user may open a new race in the category.
func CanStartRace(category *models.Category, user *models.User) bool {
	return category.Active &&
		user != nil && user.Active &&
		!user.IsBannedFromCategory(category.ID)
}

// CanMonitor reports whether the user holds monitor permission for the race:
// category moderators, the race opener, race-scoped monitors and superusers.
// The race must have Category and Monitors preloaded.
func CanMonitor(race *models.Race, user *models.User) bool {
	if user == nil || !user.Active {
		return false
	}
	if race.Category != nil && CanModerate(race.Category, user) {
		return true
	}
	return race.OpenedByID == user.ID || race.HasMonitor(user.ID)
}
