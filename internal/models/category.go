package models

import (
	"time"

	"github.com/google/uuid"
)

// Category is a game or competition container that owns goals and the
// race-creation policy for its races.
type Category struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	ShortName         string    `gorm:"size:16;uniqueIndex;not null" json:"short_name"`
	Slug              string    `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Image             *string   `gorm:"size:500" json:"image,omitempty"`
	Info              *string   `json:"info,omitempty"`
	StreamingRequired bool      `json:"streaming_required"`
	Active            bool      `json:"active"`
	OwnerID           uint      `gorm:"not null;index" json:"owner_id"`
	Owner             *User     `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	// Newline-separated custom word pool for race slugs. When set, at
	// least 100 distinct words are required.
	SlugWords *string   `json:"slug_words,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Moderators []*User `gorm:"many2many:category_moderators" json:"moderators,omitempty"`
}

func (Category) TableName() string {
	return "categories"
}

// CategorySummary is the shape categories take inside snapshot payloads.
type CategorySummary struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Slug      string `json:"slug"`
	URL       string `json:"url"`
	DataURL   string `json:"data_url"`
}

// APISummary returns the category's public summary.
func (c *Category) APISummary() CategorySummary {
	return CategorySummary{
		Name:      c.Name,
		ShortName: c.ShortName,
		Slug:      c.Slug,
		URL:       "/" + c.Slug,
		DataURL:   "/" + c.Slug + "/data",
	}
}

// Goal is a named win condition belonging to one category. Goal names are
// unique within their category.
type Goal struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_goals_category_name" json:"category_id"`
	Name        string    `gorm:"size:255;not null;uniqueIndex:idx_goals_category_name" json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Goal) TableName() string {
	return "goals"
}

// CategoryRequest is a pending proposal for a new category. Accepting it
// creates the category plus one goal per distinct requested goal line.
type CategoryRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	ShortName string    `gorm:"size:16;uniqueIndex;not null" json:"short_name"`
	Slug      string    `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	// One goal per line. A category must have at least one goal.
	Goals         string     `gorm:"not null" json:"goals"`
	RequestedAt   time.Time  `gorm:"autoCreateTime" json:"requested_at"`
	RequestedByID uint       `gorm:"not null;index" json:"requested_by_id"`
	RequestedBy   *User      `gorm:"foreignKey:RequestedByID" json:"requested_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	AcceptedAsID  *uuid.UUID `gorm:"type:uuid" json:"accepted_as_id,omitempty"`
}

func (CategoryRequest) TableName() string {
	return "category_requests"
}
