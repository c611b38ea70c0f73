package services

import (
	"fmt"
	"time"

	"raceroom/internal/models"

	"github.com/shopspring/decimal"
)

// Snapshot payload shapes. These are the point-in-time JSON documents served
// to collaborators and pushed over the live update hub.

type GoalInfo struct {
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

type RaceSummary struct {
	Name                  string            `json:"name"`
	Status                models.StatusInfo `json:"status"`
	URL                   string            `json:"url"`
	DataURL               string            `json:"data_url"`
	Goal                  GoalInfo          `json:"goal"`
	EntrantsCount         int64             `json:"entrants_count"`
	EntrantsCountInactive int64             `json:"entrants_count_inactive"`
	OpenedAt              time.Time         `json:"opened_at"`
	StartedAt             *time.Time        `json:"started_at"`
	TimeLimit             time.Duration     `json:"time_limit"`
}

type CategorySnapshot struct {
	models.CategorySummary
	Image             *string          `json:"image"`
	Info              *string          `json:"info"`
	StreamingRequired bool             `json:"streaming_required"`
	Owner             models.Summary   `json:"owner"`
	Moderators        []models.Summary `json:"moderators"`
	CurrentRaces      []RaceSummary    `json:"current_races"`
}

type EntrantSnapshot struct {
	ID             string            `json:"id"`
	User           models.Summary    `json:"user"`
	Status         models.StatusInfo `json:"status"`
	FinishTime     *time.Duration    `json:"finish_time"`
	Place          *int              `json:"place"`
	PlaceOrdinal   *string           `json:"place_ordinal"`
	ScoreChange    *decimal.Decimal  `json:"score_change,omitempty"`
	Comment        *string           `json:"comment"`
	StreamLive     bool              `json:"stream_live"`
	StreamOverride bool              `json:"stream_override"`
}

type RaceSnapshot struct {
	Name                  string                 `json:"name"`
	Status                models.StatusInfo      `json:"status"`
	URL                   string                 `json:"url"`
	DataURL               string                 `json:"data_url"`
	Category              models.CategorySummary `json:"category"`
	Goal                  GoalInfo               `json:"goal"`
	Info                  *string                `json:"info"`
	EntrantsCount         int64                  `json:"entrants_count"`
	EntrantsCountInactive int64                  `json:"entrants_count_inactive"`
	Entrants              []EntrantSnapshot      `json:"entrants"`
	OpenedAt              time.Time              `json:"opened_at"`
	StartDelay            time.Duration          `json:"start_delay"`
	StartedAt             *time.Time             `json:"started_at"`
	EndedAt               *time.Time             `json:"ended_at"`
	TimeLimit             time.Duration          `json:"time_limit"`
	OpenedBy              models.Summary         `json:"opened_by"`
	Monitors              []models.Summary       `json:"monitors"`
	Recordable            bool                   `json:"recordable"`
	Recorded              bool                   `json:"recorded"`
	RecordedBy            *models.Summary        `json:"recorded_by"`
	StreamingRequired     bool                   `json:"streaming_required"`
	AllowComments         bool                   `json:"allow_comments"`
	AllowMidraceChat      bool                   `json:"allow_midrace_chat"`
	AllowNonEntrantChat   bool                   `json:"allow_non_entrant_chat"`
	ChatMessageDelay      time.Duration          `json:"chat_message_delay"`
}

// ordinal renders 1 as "1st", 2 as "2nd" and so on.
func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// timerStr renders a duration as H:MM:SS.t for chat messages.
func timerStr(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	tenths := int(d.Milliseconds()/100) % 10
	return fmt.Sprintf("%d:%02d:%02d.%d", h, m, s, tenths)
}
