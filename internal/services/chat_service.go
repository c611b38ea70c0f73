package services

import (
	"context"
	"strings"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/ids"
	"raceroom/internal/models"
	"raceroom/internal/repository"

	"github.com/google/uuid"
)

// ChatService handles the per-race message feed: posting, cursor-based
// reads and moderation.
type ChatService struct {
	repo  *repository.Repository
	races *RaceService
}

func NewChatService(repo *repository.Repository, races *RaceService) *ChatService {
	return &ChatService{repo: repo, races: races}
}

// MessageData is one message as served to clients. Deleted and DeletedBy are
// only populated for callers with monitor permission.
type MessageData struct {
	ID        string          `json:"id"`
	User      *models.Summary `json:"user"`
	PostedAt  time.Time       `json:"posted_at"`
	Message   string          `json:"message"`
	Highlight bool            `json:"highlight"`
	IsSystem  bool            `json:"is_system"`
	Deleted   bool            `json:"deleted,omitempty"`
	DeletedBy *models.Summary `json:"deleted_by,omitempty"`
}

// ChatPayload is the feed response: a page of messages plus opaque cursors
// bounding it and the polling hint for the client.
type ChatPayload struct {
	Messages         []MessageData `json:"messages"`
	Start            *string       `json:"start"`
	End              *string       `json:"end"`
	TickRate         int           `json:"tick_rate"`
	ChatMessageDelay time.Duration `json:"chat_message_delay"`
	CanMonitor       bool          `json:"can_monitor"`
}

// Post adds a user message to the race chat.
func (s *ChatService) Post(ctx context.Context, race *models.Race, user *models.User, text string, highlight bool) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Safe("A message cannot be empty.")
	}
	if len(text) > 1000 {
		return nil, domain.Safe("Messages are limited to 1000 characters.")
	}
	if user == nil || !user.Active {
		return nil, domain.Safe("Your account is not active.")
	}

	var message *models.Message
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}

		monitor := CanMonitor(locked, user)
		entrant, err := tx.GetEntrant(ctx, locked.ID, user.ID)
		if err != nil && err != domain.ErrEntrantNotFound {
			return err
		}
		inRace := err == nil && entrant.State != models.EntrantStateDeclined

		if !monitor && !inRace && !locked.AllowNonEntrantChat {
			return domain.Safe("Only entrants may chat in this race.")
		}
		if !monitor && locked.IsInProgress() && !locked.AllowMidraceChat {
			return domain.Safe("You cannot chat while the race is in progress.")
		}

		message = &models.Message{
			ID:        uuid.New(),
			RaceID:    locked.ID,
			UserID:    user.ID,
			User:      user,
			Message:   text,
			Highlight: highlight,
		}
		return tx.CreateMessage(ctx, message)
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// HeldForDelay reports whether a message is still being withheld from
// non-monitors by the race's chat delay. System messages are never held.
func HeldForDelay(race *models.Race, isSystem bool, postedAt, now time.Time) bool {
	return !isSystem && race.IsInProgress() &&
		race.ChatMessageDelay > 0 && now.Sub(postedAt) < race.ChatMessageDelay
}

// Data returns a page of chat for the race. The since cursor is the opaque
// ID of the last message the client has seen; an empty cursor fetches the
// newest page. Callers with monitor permission also see deleted messages.
func (s *ChatService) Data(ctx context.Context, race *models.Race, user *models.User, since string) (*ChatPayload, error) {
	canMonitor := user != nil && CanMonitor(race, user)

	var afterSeq int64
	if since != "" {
		messageID, err := ids.Decode(since)
		if err != nil {
			return nil, domain.Safe("Invalid chat cursor.")
		}
		cursor, err := s.repo.GetMessage(ctx, messageID)
		if err != nil {
			return nil, domain.Safe("Invalid chat cursor.")
		}
		if cursor.RaceID != race.ID {
			return nil, domain.Safe("Invalid chat cursor.")
		}
		afterSeq = cursor.Seq
	}

	messages, err := s.repo.ListMessages(ctx, race.ID, afterSeq, models.ChatPageSize, canMonitor)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	payload := &ChatPayload{
		Messages:         make([]MessageData, 0, len(messages)),
		TickRate:         race.TickRate(now),
		ChatMessageDelay: race.ChatMessageDelay,
		CanMonitor:       canMonitor,
	}

	for _, m := range messages {
		isSystem := m.User != nil && m.User.System
		// The page ends before the first held-back message, so the End
		// cursor never advances past it and a later poll still delivers
		// it once the delay expires.
		if !canMonitor && HeldForDelay(race, isSystem, m.PostedAt, now) {
			break
		}

		data := MessageData{
			ID:        ids.Encode(m.ID),
			PostedAt:  m.PostedAt,
			Message:   m.Message,
			Highlight: m.Highlight,
			IsSystem:  isSystem,
		}
		if m.User != nil && !isSystem {
			summary := m.User.APISummary()
			data.User = &summary
		}
		if canMonitor {
			data.Deleted = m.Deleted
			if m.DeletedBy != nil {
				summary := m.DeletedBy.APISummary()
				data.DeletedBy = &summary
			}
		}
		payload.Messages = append(payload.Messages, data)
	}

	if len(payload.Messages) > 0 {
		start := payload.Messages[0].ID
		end := payload.Messages[len(payload.Messages)-1].ID
		payload.Start = &start
		payload.End = &end
	}
	return payload, nil
}

// Delete soft-deletes a message (monitor action). Deleting a message twice
// is an error.
func (s *ChatService) Delete(ctx context.Context, race *models.Race, by *models.User, messageID uuid.UUID) error {
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may delete messages.")
		}

		message, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if message.RaceID != locked.ID {
			return domain.ErrMessageNotFound
		}
		if message.User != nil && message.User.System {
			return domain.Safe("System messages cannot be deleted.")
		}
		if message.Deleted {
			return domain.Safe("Cannot delete a message that is already deleted.")
		}

		now := time.Now()
		message.Deleted = true
		message.DeletedByID = &by.ID
		message.DeletedAt = &now
		return tx.SaveMessage(ctx, message)
	})
}
