package services

import (
	"context"
	"encoding/json"
	"math/rand"
	"regexp"
	"testing"

	"raceroom/internal/domain"
	"raceroom/internal/models"
	"raceroom/internal/slugs"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRaceSlugShape(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)

	slug, err := env.categories.GenerateRaceSlug(context.Background(), category)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[a-z]+-[a-z]+-\d{4}$`), slug)
}

func TestGenerateRaceSlugExhaustsRetries(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	ctx := context.Background()

	// Occupy every slug a deterministically seeded generator will produce,
	// so all retry attempts collide.
	taken := slugs.NewGenerator(nil).WithRand(rand.New(rand.NewSource(7)))
	seen := make(map[string]struct{})
	for i := 0; i < models.SlugAttempts; i++ {
		slug := taken.Generate()
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		race := &models.Race{
			ID:         uuid.New(),
			CategoryID: category.ID,
			Slug:       slug,
			State:      models.RaceStateFinished,
			OpenedByID: owner.ID,
		}
		require.NoError(t, env.repo.DB().Create(race).Error)
	}

	env.categories.WithSlugRand(rand.New(rand.NewSource(7)))
	_, err := env.categories.GenerateRaceSlug(ctx, category)
	require.Error(t, err)
	assert.EqualError(t, err,
		"Cannot generate a distinct race slug. There may not be enough slug words available.")
	assert.True(t, domain.IsSafe(err))
}

func TestAddGoalDuplicateName(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	ctx := context.Background()

	_, err := env.categories.AddGoal(ctx, category, owner, "Any%")
	require.NoError(t, err)

	_, err = env.categories.AddGoal(ctx, category, owner, "Any%")
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestAddGoalRequiresOwner(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	stranger := env.createUser(t, "bob")
	category := env.createCategory(t, owner)

	_, err := env.categories.AddGoal(context.Background(), category, stranger, "Any%")
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestAcceptRequestCreatesCategoryAndGoals(t *testing.T) {
	env := setupTest(t)
	requester := env.createUser(t, "alice")
	staff := env.createUser(t, "root", func(u *models.User) { u.Staff = true })
	ctx := context.Background()

	request, err := env.categories.SubmitRequest(ctx, requester,
		"Super Game 64", "sg64", "sg64", "Any%\n100%\nAny%\n")
	require.NoError(t, err)

	category, err := env.categories.AcceptRequest(ctx, request.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, requester.ID, category.OwnerID)

	goals, err := env.repo.ListGoals(ctx, category.ID)
	require.NoError(t, err)
	// Duplicate and blank lines collapse.
	assert.Len(t, goals, 2)
}

func TestAcceptRequestIsAtomic(t *testing.T) {
	env := setupTest(t)
	requester := env.createUser(t, "alice")
	staff := env.createUser(t, "root", func(u *models.User) { u.Staff = true })
	ctx := context.Background()

	request, err := env.categories.SubmitRequest(ctx, requester,
		"Super Game 64", "sg64", "sg64", "\n   \n")
	require.NoError(t, err)

	_, err = env.categories.AcceptRequest(ctx, request.ID, staff)
	require.Error(t, err)

	// The whole transaction rolled back: no category was created and the
	// request is still reviewable.
	_, err = env.repo.GetCategoryBySlug(ctx, "sg64")
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	reloaded, err := env.repo.GetCategoryRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.ReviewedAt)
}

func TestAcceptRequestTwiceFails(t *testing.T) {
	env := setupTest(t)
	requester := env.createUser(t, "alice")
	staff := env.createUser(t, "root", func(u *models.User) { u.Staff = true })
	ctx := context.Background()

	request, err := env.categories.SubmitRequest(ctx, requester,
		"Super Game 64", "sg64", "sg64", "Any%")
	require.NoError(t, err)

	_, err = env.categories.AcceptRequest(ctx, request.ID, staff)
	require.NoError(t, err)

	_, err = env.categories.AcceptRequest(ctx, request.ID, staff)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestRejectRequestStampsReviewOnly(t *testing.T) {
	env := setupTest(t)
	requester := env.createUser(t, "alice")
	staff := env.createUser(t, "root", func(u *models.User) { u.Staff = true })
	ctx := context.Background()

	request, err := env.categories.SubmitRequest(ctx, requester,
		"Super Game 64", "sg64", "sg64", "Any%")
	require.NoError(t, err)
	require.NoError(t, env.categories.RejectRequest(ctx, request.ID, staff))

	_, err = env.repo.GetCategoryBySlug(ctx, "sg64")
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	reloaded, err := env.repo.GetCategoryRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.ReviewedAt)
	assert.Nil(t, reloaded.AcceptedAsID)
}

func TestAcceptRequestRequiresStaff(t *testing.T) {
	env := setupTest(t)
	requester := env.createUser(t, "alice")
	ctx := context.Background()

	request, err := env.categories.SubmitRequest(ctx, requester,
		"Super Game 64", "sg64", "sg64", "Any%")
	require.NoError(t, err)

	_, err = env.categories.AcceptRequest(ctx, request.ID, requester)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestCategorySnapshotExcludesFinishedRaces(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	ctx := context.Background()

	bob := env.createUser(t, "bob")
	open := env.createRace(t, category, owner, false)
	cancelled := env.createRace(t, category, bob, false)
	require.NoError(t, env.races.Cancel(ctx, cancelled, bob))

	data, err := env.categories.DumpJSONData(ctx, category)
	require.NoError(t, err)

	var snapshot struct {
		CurrentRaces []struct {
			Name string `json:"name"`
		} `json:"current_races"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &snapshot))
	require.Len(t, snapshot.CurrentRaces, 1)
	assert.Equal(t, open.Name(), snapshot.CurrentRaces[0].Name)
}

func TestSnapshotInvalidatedOnRaceCreation(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	ctx := context.Background()

	first, err := env.categories.JSONData(ctx, category)
	require.NoError(t, err)

	// Race creation drops the cached snapshot, so the next read picks up
	// the new room without waiting for the TTL.
	env.createRace(t, category, owner, false)
	second, err := env.categories.JSONData(ctx, category)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
