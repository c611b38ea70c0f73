package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntrantState string

const (
	EntrantStateRequested EntrantState = "requested"
	EntrantStateInvited   EntrantState = "invited"
	EntrantStateDeclined  EntrantState = "declined"
	EntrantStateJoined    EntrantState = "joined"
)

// Entrant is one user's participation record in one race. The (race, user)
// pair is unique.
type Entrant struct {
	ID     uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	RaceID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_entrants_race_user" json:"race_id"`
	Race   *Race        `gorm:"foreignKey:RaceID" json:"-"`
	UserID uint         `gorm:"not null;uniqueIndex:idx_entrants_race_user" json:"user_id"`
	User   *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	State  EntrantState `gorm:"size:50;not null;default:joined" json:"state"`

	Ready bool `gorm:"default:false" json:"ready"`
	// Did not finish the race.
	Dnf bool `gorm:"default:false" json:"dnf"`
	// Disqualified by a race moderator.
	Dq bool `gorm:"default:false" json:"dq"`

	FinishTime  *time.Duration       `json:"finish_time,omitempty"`
	Place       *int                 `json:"place,omitempty"`
	ScoreChange *decimal.Decimal     `gorm:"type:decimal(10,4)" json:"score_change,omitempty"`
	Comment     *string              `gorm:"size:200" json:"comment,omitempty"`

	StreamLive     bool `gorm:"default:false" json:"stream_live"`
	StreamOverride bool `gorm:"default:false" json:"stream_override"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Entrant) TableName() string {
	return "entrants"
}

// Summary returns the entrant's current status triplet. The race is needed
// to distinguish in-progress from ready.
func (e *Entrant) Summary(race *Race) StatusInfo {
	switch {
	case e.State == EntrantStateRequested:
		return StatusInfo{"requested", "Join request", "Wishes to join the race."}
	case e.State == EntrantStateInvited:
		return StatusInfo{"invited", "Invited", "Invited to join the race."}
	case e.State == EntrantStateDeclined:
		return StatusInfo{"declined", "Declined", "Declined invitation to join."}
	case e.Dnf:
		return StatusInfo{"dnf", "DNF", "Did not finish the race."}
	case e.Dq:
		return StatusInfo{"dq", "DQ", "Disqualified by a race moderator."}
	case e.FinishTime != nil:
		return StatusInfo{"done", "Finished", "Finished the race."}
	case race != nil && race.State == RaceStateInProgress:
		return StatusInfo{"in_progress", "In progress", "Still racing."}
	case e.Ready:
		return StatusInfo{"ready", "Ready", "Ready to begin the race."}
	default:
		return StatusInfo{"not_ready", "Not ready", "Not ready to begin yet."}
	}
}

// IsRunning reports whether the entrant is still actively racing: joined,
// not finished and not out of the race.
func (e *Entrant) IsRunning() bool {
	return e.State == EntrantStateJoined && !e.Dnf && !e.Dq && e.FinishTime == nil
}
