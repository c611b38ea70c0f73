package repository

import (
	"context"
	"errors"

	"raceroom/internal/domain"
	"raceroom/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateMessage stores a new message, assigning the next sequence number
// within its race. Callers mutating race state hold the race row lock, which
// serializes sequence assignment.
func (r *Repository) CreateMessage(ctx context.Context, message *models.Message) error {
	var maxSeq int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("race_id = ?", message.RaceID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return err
	}
	message.Seq = maxSeq + 1
	return r.db.WithContext(ctx).Create(message).Error
}

// SaveMessage persists changes to a message
func (r *Repository) SaveMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Omit("User", "Race", "DeletedBy").Save(message).Error
}

// GetMessage retrieves a message by ID
func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := r.forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, message.UserID).Error; err == nil {
		message.User = &user
	}
	return &message, nil
}

// ListMessages retrieves up to limit messages for a race, oldest first,
// optionally only those after the given sequence number. Deleted messages are
// filtered out unless includeDeleted is set (the monitor view keeps them).
func (r *Repository) ListMessages(ctx context.Context, raceID uuid.UUID, afterSeq int64, limit int, includeDeleted bool) ([]*models.Message, error) {
	var messages []*models.Message
	query := r.db.WithContext(ctx).
		Preload("User").
		Preload("DeletedBy").
		Where("race_id = ?", raceID)
	if !includeDeleted {
		query = query.Where("deleted = ?", false)
	}
	if afterSeq > 0 {
		query = query.Where("seq > ?", afterSeq)
	}
	// Fetch the newest page, then reverse into posting order.
	err := query.Order("seq DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
