package repository

import (
	"context"
	"errors"

	"raceroom/internal/domain"
	"raceroom/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateCategory creates a new category
func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

// SaveCategory persists changes to a category
func (r *Repository) SaveCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

// GetCategoryBySlug retrieves a category with owner and moderators preloaded
func (r *Repository) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Moderators").
		Where("slug = ?", slug).
		First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// GetCategoryByID retrieves a category with owner and moderators preloaded
func (r *Repository) GetCategoryByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Moderators").
		Where("id = ?", id).
		First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// CreateGoal creates a new goal
func (r *Repository) CreateGoal(ctx context.Context, goal *models.Goal) error {
	return r.db.WithContext(ctx).Create(goal).Error
}

// GetGoal retrieves a goal belonging to the given category
func (r *Repository) GetGoal(ctx context.Context, categoryID, goalID uuid.UUID) (*models.Goal, error) {
	var goal models.Goal
	err := r.db.WithContext(ctx).
		Where("id = ? AND category_id = ?", goalID, categoryID).
		First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// ListGoals retrieves all goals for a category
func (r *Repository) ListGoals(ctx context.Context, categoryID uuid.UUID) ([]*models.Goal, error) {
	var goals []*models.Goal
	err := r.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("name ASC").
		Find(&goals).Error
	if err != nil {
		return nil, err
	}
	return goals, nil
}

// CreateCategoryRequest creates a new category request
func (r *Repository) CreateCategoryRequest(ctx context.Context, request *models.CategoryRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// SaveCategoryRequest persists changes to a category request
func (r *Repository) SaveCategoryRequest(ctx context.Context, request *models.CategoryRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}

// GetCategoryRequest retrieves a category request by ID
func (r *Repository) GetCategoryRequest(ctx context.Context, id uuid.UUID) (*models.CategoryRequest, error) {
	var request models.CategoryRequest
	err := r.forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// CurrentRaces retrieves all races in a category that are not yet finished
// or cancelled
func (r *Repository) CurrentRaces(ctx context.Context, categoryID uuid.UUID) ([]*models.Race, error) {
	var races []*models.Race
	err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Goal").
		Where("category_id = ? AND state NOT IN ?", categoryID, []models.RaceState{
			models.RaceStateFinished,
			models.RaceStateCancelled,
		}).
		Order("opened_at ASC").
		Find(&races).Error
	if err != nil {
		return nil, err
	}
	return races, nil
}
