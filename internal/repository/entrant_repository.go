package repository

import (
	"context"
	"errors"

	"raceroom/internal/domain"
	"raceroom/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateEntrant creates a new entrant
func (r *Repository) CreateEntrant(ctx context.Context, entrant *models.Entrant) error {
	return r.db.WithContext(ctx).Create(entrant).Error
}

// SaveEntrant persists changes to an entrant
func (r *Repository) SaveEntrant(ctx context.Context, entrant *models.Entrant) error {
	return r.db.WithContext(ctx).Omit("User", "Race").Save(entrant).Error
}

// DeleteEntrant removes an entrant record entirely
func (r *Repository) DeleteEntrant(ctx context.Context, entrant *models.Entrant) error {
	return r.db.WithContext(ctx).Delete(entrant).Error
}

// GetEntrant retrieves the entrant record for a user in a race
func (r *Repository) GetEntrant(ctx context.Context, raceID uuid.UUID, userID uint) (*models.Entrant, error) {
	var entrant models.Entrant
	err := r.forUpdate(r.db.WithContext(ctx)).
		Where("race_id = ? AND user_id = ?", raceID, userID).
		First(&entrant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEntrantNotFound
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, entrant.UserID).Error; err == nil {
		entrant.User = &user
	}
	return &entrant, nil
}

// GetEntrantByID retrieves an entrant by its identifier
func (r *Repository) GetEntrantByID(ctx context.Context, id uuid.UUID) (*models.Entrant, error) {
	var entrant models.Entrant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("id = ?", id).
		First(&entrant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEntrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entrant, nil
}

// ListEntrants retrieves all entrants for a race with users preloaded
func (r *Repository) ListEntrants(ctx context.Context, raceID uuid.UUID) ([]*models.Entrant, error) {
	var entrants []*models.Entrant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("race_id = ?", raceID).
		Order("created_at ASC").
		Find(&entrants).Error
	if err != nil {
		return nil, err
	}
	return entrants, nil
}

// CountJoinedEntrants counts entrants who have fully joined the race
func (r *Repository) CountJoinedEntrants(ctx context.Context, raceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Entrant{}).
		Where("race_id = ? AND state = ?", raceID, models.EntrantStateJoined).
		Count(&count).Error
	return count, err
}

// CountInactiveEntrants counts joined entrants who are out of the running
// (DNF or DQ)
func (r *Repository) CountInactiveEntrants(ctx context.Context, raceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Entrant{}).
		Where("race_id = ? AND state = ? AND (dnf = ? OR dq = ?)",
			raceID, models.EntrantStateJoined, true, true).
		Count(&count).Error
	return count, err
}

// CountReadyEntrants counts joined entrants who have readied up
func (r *Repository) CountReadyEntrants(ctx context.Context, raceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Entrant{}).
		Where("race_id = ? AND state = ? AND ready = ?", raceID, models.EntrantStateJoined, true).
		Count(&count).Error
	return count, err
}

// RunningEntrants retrieves joined entrants who are still racing
func (r *Repository) RunningEntrants(ctx context.Context, raceID uuid.UUID) ([]*models.Entrant, error) {
	var entrants []*models.Entrant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("race_id = ? AND state = ? AND dnf = ? AND dq = ? AND finish_time IS NULL",
			raceID, models.EntrantStateJoined, false, false).
		Find(&entrants).Error
	if err != nil {
		return nil, err
	}
	return entrants, nil
}

// FinishedEntrants retrieves entrants with a finish time, fastest first
func (r *Repository) FinishedEntrants(ctx context.Context, raceID uuid.UUID) ([]*models.Entrant, error) {
	var entrants []*models.Entrant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("race_id = ? AND dnf = ? AND dq = ? AND finish_time IS NOT NULL", raceID, false, false).
		Order("finish_time ASC").
		Find(&entrants).Error
	if err != nil {
		return nil, err
	}
	return entrants, nil
}

// DeleteUnreadyEntrants removes entrants who are not fully joined and ready.
// Used when the race leaves the preparation phase.
func (r *Repository) DeleteUnreadyEntrants(ctx context.Context, raceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("race_id = ? AND (state != ? OR ready = ?)", raceID, models.EntrantStateJoined, false).
		Delete(&models.Entrant{}).Error
}
