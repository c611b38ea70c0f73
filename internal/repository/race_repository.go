package repository

import (
	"context"
	"errors"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var nonTerminalStates = []models.RaceState{
	models.RaceStateOpen,
	models.RaceStateInvitational,
	models.RaceStatePending,
	models.RaceStateInProgress,
}

// CreateRace creates a new race
func (r *Repository) CreateRace(ctx context.Context, race *models.Race) error {
	return r.db.WithContext(ctx).Create(race).Error
}

// SaveRace persists changes to a race
func (r *Repository) SaveRace(ctx context.Context, race *models.Race) error {
	return r.db.WithContext(ctx).Omit("Monitors", "Category", "Goal", "OpenedBy", "RecordedBy").Save(race).Error
}

// GetRace retrieves a race by category and race slug, fully preloaded
func (r *Repository) GetRace(ctx context.Context, categorySlug, raceSlug string) (*models.Race, error) {
	category, err := r.GetCategoryBySlug(ctx, categorySlug)
	if err != nil {
		return nil, err
	}

	var race models.Race
	err = r.db.WithContext(ctx).
		Preload("Goal").
		Preload("OpenedBy").
		Preload("RecordedBy").
		Preload("Monitors").
		Where("category_id = ? AND slug = ?", category.ID, raceSlug).
		First(&race).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRaceNotFound
	}
	if err != nil {
		return nil, err
	}
	race.Category = category
	return &race, nil
}

// GetRaceForUpdate retrieves a race by ID under a row lock, for use inside
// transactions that mutate it.
func (r *Repository) GetRaceForUpdate(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	var race models.Race
	err := r.forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&race).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRaceNotFound
	}
	if err != nil {
		return nil, err
	}

	// Re-attach associations outside the locking clause.
	if err := r.db.WithContext(ctx).Model(&race).Association("Monitors").Find(&race.Monitors); err != nil {
		return nil, err
	}
	category, err := r.GetCategoryByID(ctx, race.CategoryID)
	if err != nil {
		return nil, err
	}
	race.Category = category
	if race.GoalID != nil {
		var goal models.Goal
		if err := r.db.WithContext(ctx).First(&goal, "id = ?", *race.GoalID).Error; err == nil {
			race.Goal = &goal
		}
	}
	return &race, nil
}

// RaceSlugExists reports whether a slug is already used within a category
func (r *Repository) RaceSlugExists(ctx context.Context, categoryID uuid.UUID, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Race{}).
		Where("category_id = ? AND slug = ?", categoryID, slug).
		Count(&count).Error
	return count > 0, err
}

// UserHasNonTerminalRace reports whether the user has opened a race that is
// not yet finished or cancelled
func (r *Repository) UserHasNonTerminalRace(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Race{}).
		Where("opened_by_id = ? AND state IN ?", userID, nonTerminalStates).
		Count(&count).Error
	return count > 0, err
}

// UserHasActiveEntry reports whether the user is actively racing in any
// non-terminal race. Pending invitations and join requests do not count.
func (r *Repository) UserHasActiveEntry(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Entrant{}).
		Joins("JOIN races ON races.id = entrants.race_id").
		Where("entrants.user_id = ? AND races.state IN ?", userID, nonTerminalStates).
		Where("entrants.state = ?", models.EntrantStateJoined).
		Where("entrants.dnf = ? AND entrants.dq = ? AND entrants.finish_time IS NULL", false, false).
		Count(&count).Error
	return count > 0, err
}

// AddRaceMonitor adds a user to the race's monitor list
func (r *Repository) AddRaceMonitor(ctx context.Context, race *models.Race, user *models.User) error {
	return r.db.WithContext(ctx).Model(race).Association("Monitors").Append(user)
}

// RemoveRaceMonitor removes a user from the race's monitor list
func (r *Repository) RemoveRaceMonitor(ctx context.Context, race *models.Race, user *models.User) error {
	return r.db.WithContext(ctx).Model(race).Association("Monitors").Delete(user)
}

// StaleOpenRaces retrieves open or invitational races that have outlived the
// room time limits and should be swept.
func (r *Repository) StaleOpenRaces(ctx context.Context, now time.Time) ([]*models.Race, error) {
	var races []*models.Race
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("state IN ?", []models.RaceState{
			models.RaceStateOpen,
			models.RaceStateInvitational,
			models.RaceStatePending,
		}).
		Where("opened_at < ?", now.Add(-models.OpenTimeLimitLowEntrants)).
		Find(&races).Error
	if err != nil {
		return nil, err
	}
	return races, nil
}

// OverdueRaces retrieves in-progress races whose time limit has elapsed.
func (r *Repository) OverdueRaces(ctx context.Context, now time.Time) ([]*models.Race, error) {
	var races []*models.Race
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("state = ?", models.RaceStateInProgress).
		Find(&races).Error
	if err != nil {
		return nil, err
	}

	overdue := races[:0]
	for _, race := range races {
		if race.StartedAt != nil && now.Sub(*race.StartedAt) > race.TimeLimit {
			overdue = append(overdue, race)
		}
	}
	return overdue, nil
}
