package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemUserName is the reserved name of the synthetic user that authors
// audit messages.
const SystemUserName = "system"

// User represents a user in the system
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;not null" json:"name"`
	TwitchChannel *string   `json:"twitch_channel,omitempty"`
	Active        bool      `json:"active"`
	Superuser     bool      `gorm:"default:false" json:"superuser"`
	Staff         bool      `gorm:"default:false" json:"staff"`
	System        bool      `gorm:"default:false" json:"system"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Categories this user is banned from entering.
	BannedFrom []*Category `gorm:"many2many:category_bans" json:"-"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Summary is the shape users take inside snapshot and chat payloads.
type Summary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// APISummary returns the user's public summary.
func (u *User) APISummary() Summary {
	return Summary{ID: u.ID, Name: u.Name}
}

// IsBannedFromCategory reports whether the user is banned from the category.
// BannedFrom must have been preloaded.
func (u *User) IsBannedFromCategory(categoryID uuid.UUID) bool {
	for _, c := range u.BannedFrom {
		if c.ID == categoryID {
			return true
		}
	}
	return false
}
