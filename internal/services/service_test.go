package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"raceroom/internal/cache"
	"raceroom/internal/database"
	"raceroom/internal/models"
	"raceroom/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	repo       *repository.Repository
	categories *CategoryService
	races      *RaceService
	chats      *ChatService
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	repo := repository.NewRepository(db)
	snapshotCache := cache.NewMemory()
	categories := NewCategoryService(repo, snapshotCache, 50*time.Millisecond)
	races := NewRaceService(repo, snapshotCache, 50*time.Millisecond, categories)
	chats := NewChatService(repo, races)

	return &testEnv{
		repo:       repo,
		categories: categories,
		races:      races,
		chats:      chats,
	}
}

func (e *testEnv) createUser(t *testing.T, name string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	user := &models.User{Name: name, Active: true}
	for _, m := range mutate {
		m(user)
	}
	require.NoError(t, e.repo.CreateUser(context.Background(), user))
	return user
}

func (e *testEnv) mustGetUser(t *testing.T, name string) *models.User {
	t.Helper()
	user, err := e.repo.GetUserByName(context.Background(), name)
	require.NoError(t, err)
	return user
}

func (e *testEnv) createCategory(t *testing.T, owner *models.User) *models.Category {
	t.Helper()
	category := &models.Category{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("Category %s", uuid.NewString()[:8]),
		ShortName: uuid.NewString()[:8],
		Slug:      fmt.Sprintf("cat-%s", uuid.NewString()[:8]),
		OwnerID:   owner.ID,
		Active:    true,
	}
	require.NoError(t, e.repo.CreateCategory(context.Background(), category))
	created, err := e.repo.GetCategoryBySlug(context.Background(), category.Slug)
	require.NoError(t, err)
	return created
}

func (e *testEnv) createGoal(t *testing.T, category *models.Category, name string) *models.Goal {
	t.Helper()
	goal := &models.Goal{
		ID:         uuid.New(),
		CategoryID: category.ID,
		Name:       name,
		Active:     true,
	}
	require.NoError(t, e.repo.CreateGoal(context.Background(), goal))
	return goal
}

// createRace opens a race with a category goal, reloading it fully preloaded.
func (e *testEnv) createRace(t *testing.T, category *models.Category, opener *models.User, invitational bool) *models.Race {
	t.Helper()
	goal := e.createGoal(t, category, fmt.Sprintf("Goal %s", uuid.NewString()[:8]))
	race, err := e.races.Create(context.Background(), category, opener, CreateRaceInput{
		GoalID:       &goal.ID,
		Invitational: invitational,
	})
	require.NoError(t, err)
	return e.reloadRace(t, race)
}

func (e *testEnv) reloadRace(t *testing.T, race *models.Race) *models.Race {
	t.Helper()
	reloaded, err := e.races.Get(context.Background(), race.Category.Slug, race.Slug)
	require.NoError(t, err)
	return reloaded
}

// backdateStart shifts the race clock further into the past.
func (e *testEnv) backdateStart(t *testing.T, race *models.Race, d time.Duration) *models.Race {
	t.Helper()
	startedAt := race.StartedAt.Add(-d)
	race.StartedAt = &startedAt
	require.NoError(t, e.repo.SaveRace(context.Background(), race))
	return e.reloadRace(t, race)
}

// startRace walks a fresh race to in_progress with the given entrants and
// backdates the clock so finish times come out positive.
func (e *testEnv) startRace(t *testing.T, race *models.Race, opener *models.User, entrants ...*models.User) *models.Race {
	t.Helper()
	ctx := context.Background()
	for _, u := range entrants {
		require.NoError(t, e.races.Join(ctx, race, u))
		require.NoError(t, e.races.Ready(ctx, race, u))
	}
	require.NoError(t, e.races.Close(ctx, race, opener))
	require.NoError(t, e.races.Begin(ctx, race, opener))

	race = e.reloadRace(t, race)
	startedAt := time.Now().Add(-10 * time.Minute)
	race.StartedAt = &startedAt
	require.NoError(t, e.repo.SaveRace(ctx, race))
	return e.reloadRace(t, race)
}
