package repository

import (
	"context"
	"errors"

	"raceroom/internal/domain"
	"raceroom/internal/models"

	"gorm.io/gorm"
)

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByID retrieves a user with their category bans preloaded
func (r *Repository) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("BannedFrom").
		First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByName retrieves a user by their unique name
func (r *Repository) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("BannedFrom").
		Where("name = ?", name).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetSystemUser returns the synthetic user that authors audit messages,
// creating it on first use.
func (r *Repository) GetSystemUser(ctx context.Context) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("system = ?", true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Name:   models.SystemUserName,
			Active: true,
			System: true,
		}
		if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
