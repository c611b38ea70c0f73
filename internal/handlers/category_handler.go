package handlers

import (
	"net/http"

	"raceroom/internal/repository"
	"raceroom/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CategoryHandler struct {
	categories *services.CategoryService
	repo       *repository.Repository
}

func NewCategoryHandler(categories *services.CategoryService, repo *repository.Repository) *CategoryHandler {
	return &CategoryHandler{categories: categories, repo: repo}
}

// GetCategory serves the cached category snapshot.
// GET /api/categories/:category
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	ctx := c.Request.Context()
	category, err := h.categories.GetBySlug(ctx, c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}

	data, err := h.categories.JSONData(ctx, category)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(data))
}

type updateCategoryRequest struct {
	Info              *string `json:"info"`
	StreamingRequired *bool   `json:"streaming_required"`
	Active            *bool   `json:"active"`
	SlugWords         *string `json:"slug_words"`
}

// UpdateCategory applies owner edits.
// PATCH /api/categories/:category
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	var req updateCategoryRequest
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

	err = h.categories.Update(ctx, category, user, services.CategoryUpdateInput{
		Info:              req.Info,
		StreamingRequired: req.StreamingRequired,
		Active:            req.Active,
		SlugWords:         req.SlugWords,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type addGoalRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddGoal creates a new goal in the category.
// POST /api/categories/:category/goals
func (h *CategoryHandler) AddGoal(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	var req addGoalRequest
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

	goal, err := h.categories.AddGoal(ctx, category, user, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

type categoryRequestBody struct {
	Name      string `json:"name" binding:"required"`
	ShortName string `json:"short_name" binding:"required"`
	Slug      string `json:"slug" binding:"required"`
	Goals     string `json:"goals" binding:"required"`
}

// SubmitRequest files a new category request.
// POST /api/categories/requests
func (h *CategoryHandler) SubmitRequest(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	var req categoryRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.categories.SubmitRequest(c.Request.Context(), user, req.Name, req.ShortName, req.Slug, req.Goals)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// AcceptRequest approves a category request (staff only).
// POST /api/categories/requests/:id/accept
func (h *CategoryHandler) AcceptRequest(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	category, err := h.categories.AcceptRequest(c.Request.Context(), requestID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category.APISummary())
}

// RejectRequest declines a category request (staff only).
// POST /api/categories/requests/:id/reject
func (h *CategoryHandler) RejectRequest(c *gin.Context) {
	user := requireUser(c, h.repo)
	if user == nil {
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	if err := h.categories.RejectRequest(c.Request.Context(), requestID, user); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
