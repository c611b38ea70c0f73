package handlers

import (
	"net/http"
	"strings"

	"raceroom/internal/auth"
	"raceroom/internal/domain"
	"raceroom/internal/models"
	"raceroom/internal/repository"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	repo *repository.Repository
}

func NewAuthHandler(repo *repository.Repository) *AuthHandler {
	return &AuthHandler{repo: repo}
}

type tokenRequest struct {
	Name          string  `json:"name" binding:"required"`
	TwitchChannel *string `json:"twitch_channel"`
}

// Token issues a JWT for the named user, creating the account on first use.
// POST /auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || strings.EqualFold(name, models.SystemUserName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user name"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.repo.GetUserByName(ctx, name)
	if err == domain.ErrUserNotFound {
		user = &models.User{
			Name:          name,
			TwitchChannel: req.TwitchChannel,
			Active:        true,
		}
		if err := h.repo.CreateUser(ctx, user); err != nil {
			writeError(c, err)
			return
		}
	} else if err != nil {
		writeError(c, err)
		return
	}

	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is not active"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.APISummary(),
	})
}
