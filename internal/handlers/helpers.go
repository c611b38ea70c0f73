package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"raceroom/internal/auth"
	"raceroom/internal/domain"
	"raceroom/internal/models"
	"raceroom/internal/realtime"
	"raceroom/internal/repository"
	"raceroom/internal/services"

	"github.com/gin-gonic/gin"
)

// writeError maps service errors onto HTTP responses: user-displayable
// domain errors are 400 with the message verbatim, not-found sentinels are
// 404, anything else is a logged 500.
func writeError(c *gin.Context, err error) {
	if domain.IsSafe(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrGoalNotFound),
		errors.Is(err, domain.ErrRaceNotFound),
		errors.Is(err, domain.ErrEntrantNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("[Handlers] Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// currentUser loads the authenticated user, or nil when the request carries
// no identity.
func currentUser(c *gin.Context, repo *repository.Repository) (*models.User, error) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return nil, nil
	}
	return repo.GetUserByID(c.Request.Context(), userID)
}

// requireUser loads the authenticated user and writes a 401 when missing.
func requireUser(c *gin.Context, repo *repository.Repository) *models.User {
	user, err := currentUser(c, repo)
	if err != nil {
		writeError(c, err)
		return nil
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return user
}

// broadcastRace pushes a fresh race snapshot to everyone in the room. The
// race is re-fetched so the snapshot reflects the action that just committed.
func broadcastRace(ctx context.Context, races *services.RaceService, categorySlug, raceSlug string) {
	race, err := races.Get(ctx, categorySlug, raceSlug)
	if err != nil {
		log.Printf("[Handlers] Failed to reload race for broadcast: %v", err)
		return
	}
	data, err := races.DumpJSONData(ctx, race)
	if err != nil {
		log.Printf("[Handlers] Failed to dump race snapshot for broadcast: %v", err)
		return
	}
	realtime.BroadcastRaceUpdate(realtime.RaceUpdate{
		Race:       race.Name(),
		UpdateType: "race",
		Data:       json.RawMessage(data),
	})
}
