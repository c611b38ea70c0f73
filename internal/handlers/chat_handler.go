package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/ids"
	"raceroom/internal/metrics"
	"raceroom/internal/realtime"
	"raceroom/internal/repository"
	"raceroom/internal/services"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chats *services.ChatService
	races *services.RaceService
	repo  *repository.Repository
}

func NewChatHandler(chats *services.ChatService, races *services.RaceService, repo *repository.Repository) *ChatHandler {
	return &ChatHandler{chats: chats, races: races, repo: repo}
}

// GetChat serves a page of the race's message feed.
// GET /api/:category/:race/chat?since=<cursor>
func (h *ChatHandler) GetChat(c *gin.Context) {
	ctx := c.Request.Context()
	race, err := h.races.Get(ctx, c.Param("category"), c.Param("race"))
	if err != nil {
		writeError(c, err)
		return
	}

	user, err := currentUser(c, h.repo)
	if err != nil {
		writeError(c, err)
		return
	}

	payload, err := h.chats.Data(ctx, race, user, c.Query("since"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

type postMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// PostMessage adds a message to the race chat.
// POST /api/:category/:race/chat
func (h *ChatHandler) PostMessage(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	race, err := h.races.Get(ctx, c.Param("category"), c.Param("race"))
	if err != nil {
		writeError(c, err)
		return
	}

	message, err := h.chats.Post(ctx, race, user, req.Message, false)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.ChatMessages.Inc()

	summary := user.APISummary()
	data := services.MessageData{
		ID:       ids.Encode(message.ID),
		User:     &summary,
		PostedAt: message.PostedAt,
		Message:  message.Message,
	}
	// A message under the chat delay is not pushed to watchers; clients
	// pick it up from the feed once the delay expires, same as the read
	// path.
	if !services.HeldForDelay(race, false, message.PostedAt, time.Now()) {
		if raw, err := json.Marshal(data); err == nil {
			realtime.BroadcastRaceUpdate(realtime.RaceUpdate{
				Race:       race.Name(),
				UpdateType: "chat",
				Data:       raw,
			})
		} else {
			log.Printf("[ChatHandler] Failed to marshal chat broadcast: %v", err)
		}
	}

	c.JSON(http.StatusCreated, data)
}

// DeleteMessage soft-deletes a chat message (monitor action).
// DELETE /api/:category/:race/chat/:message
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	ctx := c.Request.Context()
	race, err := h.races.Get(ctx, c.Param("category"), c.Param("race"))
	if err != nil {
		writeError(c, err)
		return
	}

	messageID, err := ids.Decode(c.Param("message"))
	if err != nil {
		writeError(c, domain.ErrMessageNotFound)
		return
	}

	if err := h.chats.Delete(ctx, race, user, messageID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
