package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"raceroom/internal/cache"
	"raceroom/internal/domain"
	"raceroom/internal/models"
	"raceroom/internal/repository"
	"raceroom/internal/slugs"

	"github.com/google/uuid"
)

type CategoryService struct {
	repo        *repository.Repository
	cache       cache.Cache
	snapshotTTL time.Duration
	slugRand    *rand.Rand
}

func NewCategoryService(repo *repository.Repository, c cache.Cache, snapshotTTL time.Duration) *CategoryService {
	return &CategoryService{
		repo:        repo,
		cache:       c,
		snapshotTTL: snapshotTTL,
	}
}

// GetBySlug retrieves a category
func (s *CategoryService) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	return s.repo.GetCategoryBySlug(ctx, slug)
}

// WithSlugRand sets a deterministic random source for slug generation, for
// tests.
func (s *CategoryService) WithSlugRand(rng *rand.Rand) *CategoryService {
	s.slugRand = rng
	return s
}

// GenerateRaceSlug produces a slug unused by any existing race in the
// category, retrying on collision up to the attempt bound. The uniqueness
// constraint on (category, slug) remains the final authority; callers should
// treat an insert conflict as one more retry trigger.
func (s *CategoryService) GenerateRaceSlug(ctx context.Context, category *models.Category) (string, error) {
	var generator *slugs.Generator
	if category.SlugWords != nil && *category.SlugWords != "" {
		generator = slugs.NewGenerator(slugs.SplitWords(*category.SlugWords))
	} else {
		generator = slugs.NewGenerator(nil)
	}
	if s.slugRand != nil {
		generator.WithRand(s.slugRand)
	}

	for attempt := 0; attempt < models.SlugAttempts; attempt++ {
		slug := generator.Generate()
		exists, err := s.repo.RaceSlugExists(ctx, category.ID, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
	}

	return "", domain.Safe(
		"Cannot generate a distinct race slug. There may not be enough slug words available.",
	)
}

// UpdateInput carries the editable category fields.
type CategoryUpdateInput struct {
	Info              *string
	StreamingRequired *bool
	Active            *bool
	SlugWords         *string
}

// Update applies owner/superuser edits to a category.
func (s *CategoryService) Update(ctx context.Context, category *models.Category, actor *models.User, input CategoryUpdateInput) error {
	if !CanEdit(category, actor) {
		return domain.Safe("You do not have permission to edit this category.")
	}

	if input.SlugWords != nil && *input.SlugWords != "" {
		pool := slugs.NewGenerator(slugs.SplitWords(*input.SlugWords))
		if pool.PoolSize() < models.MinWordPoolSize {
			return domain.Safe(fmt.Sprintf(
				"A custom word list needs at least %d distinct words.", models.MinWordPoolSize,
			))
		}
	}

	if input.Info != nil {
		category.Info = input.Info
	}
	if input.StreamingRequired != nil {
		category.StreamingRequired = *input.StreamingRequired
	}
	if input.Active != nil {
		category.Active = *input.Active
	}
	if input.SlugWords != nil {
		category.SlugWords = input.SlugWords
	}

	if err := s.repo.SaveCategory(ctx, category); err != nil {
		return err
	}
	return s.InvalidateSnapshot(ctx, category)
}

// AddGoal creates a new goal in the category.
func (s *CategoryService) AddGoal(ctx context.Context, category *models.Category, actor *models.User, name string) (*models.Goal, error) {
	if !CanEdit(category, actor) {
		return nil, domain.Safe("You do not have permission to edit this category.")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Safe("A goal needs a name.")
	}

	goal := &models.Goal{
		ID:         uuid.New(),
		CategoryID: category.ID,
		Name:       name,
		Active:     true,
	}
	if err := s.repo.CreateGoal(ctx, goal); err != nil {
		return nil, domain.Safe("A goal with that name already exists in this category.")
	}
	return goal, nil
}

// SubmitRequest files a new category request.
func (s *CategoryService) SubmitRequest(ctx context.Context, requestedBy *models.User, name, shortName, slug, goals string) (*models.CategoryRequest, error) {
	if !requestedBy.Active {
		return nil, domain.Safe("Your account is not active.")
	}
	if strings.TrimSpace(goals) == "" {
		return nil, domain.Safe("A category must have at least one goal.")
	}

	request := &models.CategoryRequest{
		ID:            uuid.New(),
		Name:          name,
		ShortName:     shortName,
		Slug:          slug,
		Goals:         goals,
		RequestedByID: requestedBy.ID,
	}
	if err := s.repo.CreateCategoryRequest(ctx, request); err != nil {
		return nil, domain.Safe("A category with that name, short name or slug already exists.")
	}
	return request, nil
}

// AcceptRequest atomically creates the category and one goal per distinct
// requested goal line, then stamps the review. Either everything commits or
// nothing does.
func (s *CategoryService) AcceptRequest(ctx context.Context, requestID uuid.UUID, reviewer *models.User) (*models.Category, error) {
	if reviewer == nil || !reviewer.Active || !reviewer.Staff {
		return nil, domain.Safe("You do not have permission to review category requests.")
	}

	var category *models.Category
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		request, err := tx.GetCategoryRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.ReviewedAt != nil {
			return domain.Safe("This request has already been reviewed.")
		}

		category = &models.Category{
			ID:                uuid.New(),
			Name:              request.Name,
			ShortName:         request.ShortName,
			Slug:              request.Slug,
			OwnerID:           request.RequestedByID,
			StreamingRequired: true,
			Active:            true,
		}
		if err := tx.CreateCategory(ctx, category); err != nil {
			return err
		}

		seen := make(map[string]struct{})
		for _, line := range strings.Split(request.Goals, "\n") {
			name := strings.TrimSpace(line)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}

			goal := &models.Goal{
				ID:         uuid.New(),
				CategoryID: category.ID,
				Name:       name,
				Active:     true,
			}
			if err := tx.CreateGoal(ctx, goal); err != nil {
				return err
			}
		}
		if len(seen) == 0 {
			return domain.Safe("A category must have at least one goal.")
		}

		now := time.Now()
		request.ReviewedAt = &now
		request.AcceptedAsID = &category.ID
		return tx.SaveCategoryRequest(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CategoryService] Request %s accepted as category %s", requestID, category.Slug)
	return category, nil
}

// RejectRequest stamps the review timestamp only; no category is created.
func (s *CategoryService) RejectRequest(ctx context.Context, requestID uuid.UUID, reviewer *models.User) error {
	if reviewer == nil || !reviewer.Active || !reviewer.Staff {
		return domain.Safe("You do not have permission to review category requests.")
	}

	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		request, err := tx.GetCategoryRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.ReviewedAt != nil {
			return domain.Safe("This request has already been reviewed.")
		}

		now := time.Now()
		request.ReviewedAt = &now
		return tx.SaveCategoryRequest(ctx, request)
	})
}

// JSONData returns the cached category snapshot, recomputing it on expiry.
func (s *CategoryService) JSONData(ctx context.Context, category *models.Category) (string, error) {
	return s.cache.GetOrSet(ctx, snapshotKey(category.Slug), s.snapshotTTL, func() (string, error) {
		return s.DumpJSONData(ctx, category)
	})
}

// DumpJSONData computes the category snapshot: summary, owner, moderators
// and all currently active races.
func (s *CategoryService) DumpJSONData(ctx context.Context, category *models.Category) (string, error) {
	races, err := s.repo.CurrentRaces(ctx, category.ID)
	if err != nil {
		return "", err
	}

	summaries := make([]RaceSummary, 0, len(races))
	for _, race := range races {
		count, err := s.repo.CountJoinedEntrants(ctx, race.ID)
		if err != nil {
			return "", err
		}
		inactive, err := s.repo.CountInactiveEntrants(ctx, race.ID)
		if err != nil {
			return "", err
		}
		summaries = append(summaries, RaceSummary{
			Name:                  race.Name(),
			Status:                race.State.Info(),
			URL:                   "/" + race.Name(),
			DataURL:               "/" + race.Name() + "/data",
			Goal:                  GoalInfo{Name: race.GoalStr(), Custom: race.HasCustomGoal()},
			EntrantsCount:         count,
			EntrantsCountInactive: inactive,
			OpenedAt:              race.OpenedAt,
			StartedAt:             race.StartedAt,
			TimeLimit:             race.TimeLimit,
		})
	}

	moderators := make([]models.Summary, 0, len(category.Moderators))
	for _, m := range category.Moderators {
		moderators = append(moderators, m.APISummary())
	}

	snapshot := CategorySnapshot{
		CategorySummary:   category.APISummary(),
		Image:             category.Image,
		Info:              category.Info,
		StreamingRequired: category.StreamingRequired,
		Moderators:        moderators,
		CurrentRaces:      summaries,
	}
	if category.Owner != nil {
		snapshot.Owner = category.Owner.APISummary()
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// InvalidateSnapshot drops the cached snapshot so the next read recomputes.
func (s *CategoryService) InvalidateSnapshot(ctx context.Context, category *models.Category) error {
	return s.cache.Delete(ctx, snapshotKey(category.Slug))
}

func snapshotKey(name string) string {
	return name + "/data"
}
