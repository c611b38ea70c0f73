package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/ids"
	"raceroom/internal/metrics"
	"raceroom/internal/models"
	"raceroom/internal/repository"
	"raceroom/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RaceHandler struct {
	races      *services.RaceService
	categories *services.CategoryService
	repo       *repository.Repository
}

func NewRaceHandler(races *services.RaceService, categories *services.CategoryService, repo *repository.Repository) *RaceHandler {
	return &RaceHandler{races: races, categories: categories, repo: repo}
}

type createRaceRequest struct {
	GoalID            *string `json:"goal_id"`
	CustomGoal        *string `json:"custom_goal"`
	Invitational      bool    `json:"invitational"`
	Info              *string `json:"info"`
	StartDelay        int     `json:"start_delay"`        // seconds
	TimeLimit         int     `json:"time_limit"`         // seconds
	StreamingRequired *bool   `json:"streaming_required"`
	ChatMessageDelay  int     `json:"chat_message_delay"` // seconds
	AllowComments     *bool   `json:"allow_comments"`
	AllowMidraceChat  *bool   `json:"allow_midrace_chat"`
}

// CreateRace opens a new race room.
// POST /api/:category/races
func (h *RaceHandler) CreateRace(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	var req createRaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	category, err := h.categories.GetBySlug(ctx, c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}

	input := services.CreateRaceInput{
		CustomGoal:        req.CustomGoal,
		Invitational:      req.Invitational,
		Info:              req.Info,
		StartDelay:        time.Duration(req.StartDelay) * time.Second,
		TimeLimit:         time.Duration(req.TimeLimit) * time.Second,
		StreamingRequired: req.StreamingRequired,
		ChatMessageDelay:  time.Duration(req.ChatMessageDelay) * time.Second,
		AllowComments:     req.AllowComments,
		AllowMidraceChat:  req.AllowMidraceChat,
	}
	if req.GoalID != nil {
		goalID, err := uuid.Parse(*req.GoalID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
			return
		}
		input.GoalID = &goalID
	}

	race, err := h.races.Create(ctx, category, user, input)
	if err != nil {
		metrics.RaceActions.WithLabelValues("create", "error").Inc()
		writeError(c, err)
		return
	}
	metrics.RaceActions.WithLabelValues("create", "ok").Inc()

	c.JSON(http.StatusCreated, gin.H{
		"name": race.Name(),
		"slug": race.Slug,
		"url":  "/" + race.Name(),
	})
}

// GetRace serves the race snapshot plus the caller's available actions.
// GET /api/:category/:race
func (h *RaceHandler) GetRace(c *gin.Context) {
	ctx := c.Request.Context()
	race, err := h.races.Get(ctx, c.Param("category"), c.Param("race"))
	if err != nil {
		writeError(c, err)
		return
	}

	data, err := h.races.JSONData(ctx, race)
	if err != nil {
		writeError(c, err)
		return
	}

	user, err := currentUser(c, h.repo)
	if err != nil {
		writeError(c, err)
		return
	}

	actions := []string{}
	canMonitor := false
	if user != nil {
		entrant, err := h.races.InRace(ctx, race, user)
		if err != nil {
			writeError(c, err)
			return
		}
		canJoin := false
		if entrant == nil {
			canJoin, err = h.races.CanJoin(ctx, race, user)
			if err != nil {
				writeError(c, err)
				return
			}
		}
		actions = services.AvailableActions(race, entrant, canJoin)
		canMonitor = services.CanMonitor(race, user)
	}

	c.JSON(http.StatusOK, gin.H{
		"race":              json.RawMessage(data),
		"available_actions": actions,
		"can_monitor":       canMonitor,
	})
}

// SelfAction dispatches an entrant's own action by tag.
// POST /api/:category/:race/actions/:action
func (h *RaceHandler) SelfAction(c *gin.Context) {
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

	action := c.Param("action")
	switch action {
	case "join":
		err = h.races.Join(ctx, race, user)
	case "request_invite":
		err = h.races.RequestToJoin(ctx, race, user)
	case "accept_invite":
		err = h.races.AcceptInvite(ctx, race, user)
	case "decline_invite":
		err = h.races.DeclineInvite(ctx, race, user)
	case "cancel_invite":
		err = h.races.CancelRequest(ctx, race, user)
	case "leave":
		err = h.races.Leave(ctx, race, user)
	case "ready":
		err = h.races.Ready(ctx, race, user)
	case "unready":
		err = h.races.Unready(ctx, race, user)
	case "done":
		err = h.races.Done(ctx, race, user)
	case "undone":
		err = h.races.Undone(ctx, race, user)
	case "forfeit":
		err = h.races.Forfeit(ctx, race, user)
	case "unforfeit":
		err = h.races.Unforfeit(ctx, race, user)
	case "add_comment":
		var req struct {
			Comment string `json:"comment" binding:"required"`
		}
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
			return
		}
		err = h.races.AddComment(ctx, race, user, req.Comment)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	if err != nil {
		metrics.RaceActions.WithLabelValues(action, "error").Inc()
		writeError(c, err)
		return
	}
	metrics.RaceActions.WithLabelValues(action, "ok").Inc()

	broadcastRace(ctx, h.races, c.Param("category"), c.Param("race"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type monitorActionRequest struct {
	User              *string `json:"user"`
	Invitational      bool    `json:"invitational"`
	GoalID            *string `json:"goal_id"`
	CustomGoal        *string `json:"custom_goal"`
	Info              *string `json:"info"`
	StreamingRequired *bool   `json:"streaming_required"`
	ChatMessageDelay  *int    `json:"chat_message_delay"` // seconds
}

// MonitorAction dispatches a monitor or moderator action by tag. Actions
// targeting an entrant take the entrant's opaque ID as a path parameter.
// POST /api/:category/:race/monitor/:action
// POST /api/:category/:race/monitor/:action/:entrant
func (h *RaceHandler) MonitorAction(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	var req monitorActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	race, err := h.races.Get(ctx, c.Param("category"), c.Param("race"))
	if err != nil {
		writeError(c, err)
		return
	}

	action := c.Param("action")
	switch action {
	case "close":
		err = h.races.Close(ctx, race, user)
	case "reopen":
		err = h.races.Reopen(ctx, race, user, req.Invitational)
	case "begin":
		err = h.races.Begin(ctx, race, user)
	case "cancel":
		err = h.races.Cancel(ctx, race, user)
	case "record":
		err = h.races.Record(ctx, race, user)
	case "unrecord":
		err = h.races.Unrecord(ctx, race, user)
	case "invite", "add_monitor", "remove_monitor":
		if req.User == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
			return
		}
		var target *models.User
		target, err = h.repo.GetUserByName(ctx, *req.User)
		if err != nil {
			writeError(c, err)
			return
		}
		switch action {
		case "invite":
			err = h.races.Invite(ctx, race, user, target)
		case "add_monitor":
			err = h.races.AddMonitor(ctx, race, user, target)
		case "remove_monitor":
			err = h.races.RemoveMonitor(ctx, race, user, target)
		}
	case "edit":
		input := services.EditRaceInput{
			CustomGoal:        req.CustomGoal,
			Info:              req.Info,
			StreamingRequired: req.StreamingRequired,
		}
		if req.GoalID != nil {
			goalID, parseErr := uuid.Parse(*req.GoalID)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal id"})
				return
			}
			input.GoalID = &goalID
		}
		if req.ChatMessageDelay != nil {
			delay := time.Duration(*req.ChatMessageDelay) * time.Second
			input.ChatMessageDelay = &delay
		}
		err = h.races.Edit(ctx, race, user, input)
	case "accept_request", "force_unready", "remove", "override_stream", "dq", "undq":
		entrantID, decodeErr := ids.Decode(c.Param("entrant"))
		if decodeErr != nil {
			writeError(c, domain.ErrEntrantNotFound)
			return
		}
		switch action {
		case "accept_request":
			err = h.races.AcceptEntrantRequest(ctx, race, user, entrantID)
		case "force_unready":
			err = h.races.ForceUnready(ctx, race, user, entrantID)
		case "remove":
			err = h.races.RemoveEntrant(ctx, race, user, entrantID)
		case "override_stream":
			err = h.races.OverrideStream(ctx, race, user, entrantID)
		case "dq":
			err = h.races.Disqualify(ctx, race, user, entrantID)
		case "undq":
			err = h.races.Undisqualify(ctx, race, user, entrantID)
		}
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	if err != nil {
		metrics.RaceActions.WithLabelValues(action, "error").Inc()
		writeError(c, err)
		return
	}
	metrics.RaceActions.WithLabelValues(action, "ok").Inc()

	broadcastRace(ctx, h.races, c.Param("category"), c.Param("race"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
