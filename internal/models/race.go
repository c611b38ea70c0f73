package models

import (
	"time"

	"github.com/google/uuid"
)

type RaceState string

const (
	RaceStateOpen         RaceState = "open"
	RaceStateInvitational RaceState = "invitational"
	RaceStatePending      RaceState = "pending"
	RaceStateInProgress   RaceState = "in_progress"
	RaceStateFinished     RaceState = "finished"
	RaceStateCancelled    RaceState = "cancelled"
)

// StatusInfo is the (value, verbose value, help text) triplet used in
// snapshot payloads for both races and entrants.
type StatusInfo struct {
	Value        string `json:"value"`
	VerboseValue string `json:"verbose_value"`
	HelpText     string `json:"help_text"`
}

var raceStateInfo = map[RaceState]StatusInfo{
	RaceStateOpen:         {"open", "Open", "Anyone may join this race."},
	RaceStateInvitational: {"invitational", "Invitational", "Only invited users may join this race."},
	RaceStatePending:      {"pending", "Getting ready", "The race is closed to new entrants and about to start."},
	RaceStateInProgress:   {"in_progress", "In progress", "The race is underway."},
	RaceStateFinished:     {"finished", "Finished", "This race has concluded."},
	RaceStateCancelled:    {"cancelled", "Cancelled", "This race has been cancelled."},
}

// Info returns the display triplet for the state.
func (s RaceState) Info() StatusInfo {
	return raceStateInfo[s]
}

// Default race timing bounds.
const (
	MinStartDelay      = 10 * time.Second
	MaxStartDelay      = 60 * time.Second
	DefaultStartDelay  = 15 * time.Second
	MinTimeLimit       = 1 * time.Hour
	MaxTimeLimit       = 24 * time.Hour
	DefaultTimeLimit   = 24 * time.Hour
	MaxChatDelay       = 30 * time.Second
	SlugAttempts       = 99
	ChatPageSize       = 100
	MinWordPoolSize    = 100
	MinEntrantsToBegin = 2

	// How long a race room can be open for with under 2 entrants.
	OpenTimeLimitLowEntrants = 30 * time.Minute
	// How long a race room can be open for in general.
	OpenTimeLimit = 4 * time.Hour
)

// Race is one timed competitive session. Its slug is unique within its
// category but may repeat across categories.
type Race struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_races_category_slug" json:"category_id"`
	Category   *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Slug       string    `gorm:"size:255;not null;uniqueIndex:idx_races_category_slug" json:"slug"`
	State      RaceState `gorm:"size:50;not null;default:open;index" json:"state"`

	// Exactly one of GoalID and CustomGoal is set.
	GoalID     *uuid.UUID `gorm:"type:uuid" json:"goal_id,omitempty"`
	Goal       *Goal      `gorm:"foreignKey:GoalID" json:"goal,omitempty"`
	CustomGoal *string    `gorm:"size:255" json:"custom_goal,omitempty"`

	Info *string `json:"info,omitempty"`

	OpenedByID uint       `gorm:"not null;index" json:"opened_by_id"`
	OpenedBy   *User      `gorm:"foreignKey:OpenedByID" json:"opened_by,omitempty"`
	OpenedAt   time.Time  `gorm:"autoCreateTime" json:"opened_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	// Recordable is set explicitly on creation; custom-goal races are
	// never recordable.
	Recordable   bool  `json:"recordable"`
	Recorded     bool  `gorm:"default:false" json:"recorded"`
	RecordedByID *uint `json:"recorded_by_id,omitempty"`
	RecordedBy   *User `gorm:"foreignKey:RecordedByID" json:"recorded_by,omitempty"`

	StartDelay          time.Duration `gorm:"not null" json:"start_delay"`
	TimeLimit           time.Duration `gorm:"not null" json:"time_limit"`
	StreamingRequired   bool          `json:"streaming_required"`
	AllowComments       bool          `json:"allow_comments"`
	AllowMidraceChat    bool          `json:"allow_midrace_chat"`
	AllowNonEntrantChat bool          `gorm:"default:false" json:"allow_non_entrant_chat"`
	ChatMessageDelay    time.Duration `gorm:"default:0" json:"chat_message_delay"`

	// Users granted race-scoped monitor permission, on top of category
	// moderators.
	Monitors []*User `gorm:"many2many:race_monitors" json:"monitors,omitempty"`
}

func (Race) TableName() string {
	return "races"
}

// Name is the canonical "category-slug/race-slug" identifier. Category must
// have been preloaded.
func (r *Race) Name() string {
	if r.Category != nil {
		return r.Category.Slug + "/" + r.Slug
	}
	return r.Slug
}

// GoalStr returns the current goal (or custom goal) as a string.
func (r *Race) GoalStr() string {
	if r.Goal != nil {
		return r.Goal.Name
	}
	if r.CustomGoal != nil {
		return *r.CustomGoal
	}
	return ""
}

// HasCustomGoal reports whether the race runs a free-text goal rather than a
// category goal.
func (r *Race) HasCustomGoal() bool {
	return r.GoalID == nil
}

// IsPreparing reports whether the race is open or invitational.
func (r *Race) IsPreparing() bool {
	return r.State == RaceStateOpen || r.State == RaceStateInvitational
}

func (r *Race) IsPending() bool {
	return r.State == RaceStatePending
}

func (r *Race) IsInProgress() bool {
	return r.State == RaceStateInProgress
}

// IsDone reports whether the race has reached a terminal state.
func (r *Race) IsDone() bool {
	return r.State == RaceStateFinished || r.State == RaceStateCancelled
}

// Timer returns how long the race has been going on for, accurate to the
// nearest second.
func (r *Race) Timer(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := now
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	return end.Sub(*r.StartedAt).Truncate(time.Second)
}

// TickRate is the polling interval hint, in milliseconds, for chat clients.
func (r *Race) TickRate(now time.Time) int {
	if r.EndedAt != nil && now.Sub(*r.EndedAt) > time.Hour {
		return 86400000
	}
	if r.IsPending() {
		return 500
	}
	return 1000
}

// HasMonitor reports whether the user is in the race's monitor list.
// Monitors must have been preloaded.
func (r *Race) HasMonitor(userID uint) bool {
	for _, m := range r.Monitors {
		if m.ID == userID {
			return true
		}
	}
	return false
}
