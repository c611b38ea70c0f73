package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat or audit entry scoped to one race. Deleted messages are
// soft-deleted and stay in the table.
type Message struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RaceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_messages_race_seq" json:"race_id"`
	Race   *Race     `gorm:"foreignKey:RaceID" json:"-"`
	UserID uint      `gorm:"not null;index" json:"user_id"`
	User   *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`

	// Seq orders messages within a race; chat cursors resolve to it.
	// Assigned by the repository under the race's row lock.
	Seq       int64     `gorm:"not null;uniqueIndex:idx_messages_race_seq" json:"-"`
	PostedAt  time.Time `gorm:"autoCreateTime" json:"posted_at"`
	Message   string    `gorm:"size:1000;not null" json:"message"`
	Highlight bool      `gorm:"default:false" json:"highlight"`

	Deleted     bool       `gorm:"default:false" json:"deleted"`
	DeletedByID *uint      `json:"deleted_by_id,omitempty"`
	DeletedBy   *User      `gorm:"foreignKey:DeletedByID" json:"deleted_by,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}
