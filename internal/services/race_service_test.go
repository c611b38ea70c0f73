package services

import (
	"context"
	"testing"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// The create-retry loop in RaceService.Create only retries when the insert
// lost a slug race; the driver must surface that as gorm.ErrDuplicatedKey.
func TestRaceSlugConflictIsDuplicatedKey(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)

	dup := &models.Race{
		ID:         uuid.New(),
		CategoryID: category.ID,
		Slug:       race.Slug,
		State:      models.RaceStateOpen,
		OpenedByID: owner.ID,
	}
	err := env.repo.DB().Create(dup).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestCreateRaceOneOpenRoomRule(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	goal := env.createGoal(t, category, "Any%")
	ctx := context.Background()

	_, err := env.races.Create(ctx, category, owner, CreateRaceInput{GoalID: &goal.ID})
	require.NoError(t, err)

	_, err = env.races.Create(ctx, category, owner, CreateRaceInput{GoalID: &goal.ID})
	require.Error(t, err)
	assert.EqualError(t, err, "You can only have one open race room at a time.")
}

func TestCreateRaceStaffBypassesOpenRoomRule(t *testing.T) {
	env := setupTest(t)
	staff := env.createUser(t, "root", func(u *models.User) { u.Staff = true })
	category := env.createCategory(t, staff)
	goal := env.createGoal(t, category, "Any%")
	ctx := context.Background()

	_, err := env.races.Create(ctx, category, staff, CreateRaceInput{GoalID: &goal.ID})
	require.NoError(t, err)
	_, err = env.races.Create(ctx, category, staff, CreateRaceInput{GoalID: &goal.ID})
	require.NoError(t, err)
}

func TestCreateRaceCustomGoalNotRecordable(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	ctx := context.Background()

	custom := "beat the game blindfolded"
	race, err := env.races.Create(ctx, category, owner, CreateRaceInput{CustomGoal: &custom})
	require.NoError(t, err)

	reloaded := env.reloadRace(t, race)
	assert.False(t, reloaded.Recordable)
	assert.True(t, reloaded.HasCustomGoal())
	assert.Equal(t, custom, reloaded.GoalStr())
}

func TestCreateRaceNeedsExactlyOneGoal(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	goal := env.createGoal(t, category, "Any%")
	custom := "something else"
	ctx := context.Background()

	_, err := env.races.Create(ctx, category, owner, CreateRaceInput{})
	assert.True(t, domain.IsSafe(err))

	_, err = env.races.Create(ctx, category, owner, CreateRaceInput{GoalID: &goal.ID, CustomGoal: &custom})
	assert.True(t, domain.IsSafe(err))
}

func TestCreateRaceInactiveCategory(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	category.Active = false
	require.NoError(t, env.repo.SaveCategory(context.Background(), category))
	goal := env.createGoal(t, category, "Any%")

	_, err := env.races.Create(context.Background(), category, owner, CreateRaceInput{GoalID: &goal.ID})
	assert.True(t, domain.IsSafe(err))
}

func TestCloseAndReopen(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Close(ctx, race, owner))
	assert.Equal(t, models.RaceStatePending, env.reloadRace(t, race).State)

	// Closing twice is a state error.
	err := env.races.Close(ctx, race, owner)
	assert.True(t, domain.IsSafe(err))

	require.NoError(t, env.races.Reopen(ctx, race, owner, true))
	assert.Equal(t, models.RaceStateInvitational, env.reloadRace(t, race).State)
}

func TestCloseRequiresMonitor(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	stranger := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)

	err := env.races.Close(context.Background(), race, stranger)
	require.Error(t, err)
	assert.EqualError(t, err, "Only race monitors may do that.")
}

func TestBeginRequiresEnoughReadyEntrants(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	runner := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Join(ctx, race, runner))
	require.NoError(t, env.races.Ready(ctx, race, runner))
	require.NoError(t, env.races.Close(ctx, race, owner))

	err := env.races.Begin(ctx, race, owner)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestBeginDropsUnreadyEntrants(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	idle := env.createUser(t, "dave")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	for _, u := range []*models.User{r1, r2} {
		require.NoError(t, env.races.Join(ctx, race, u))
		require.NoError(t, env.races.Ready(ctx, race, u))
	}
	require.NoError(t, env.races.Join(ctx, race, idle))

	require.NoError(t, env.races.Close(ctx, race, owner))
	require.NoError(t, env.races.Begin(ctx, race, owner))

	reloaded := env.reloadRace(t, race)
	assert.Equal(t, models.RaceStateInProgress, reloaded.State)
	assert.NotNil(t, reloaded.StartedAt)

	entrants, err := env.repo.ListEntrants(ctx, race.ID)
	require.NoError(t, err)
	assert.Len(t, entrants, 2)
}

func TestBeginOnlyFromPending(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)

	err := env.races.Begin(context.Background(), race, owner)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	ctx := context.Background()

	race := env.createRace(t, category, owner, false)
	require.NoError(t, env.races.Cancel(ctx, race, owner))

	reloaded := env.reloadRace(t, race)
	assert.Equal(t, models.RaceStateCancelled, reloaded.State)
	assert.False(t, reloaded.Recordable)
	assert.NotNil(t, reloaded.EndedAt)
}

func TestCancelTwiceFails(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Cancel(ctx, race, owner))
	err := env.races.Cancel(ctx, race, owner)
	require.Error(t, err)
	assert.EqualError(t, err, "This race is already cancelled.")
}

func TestCancelInProgressMarksRunnersDNF(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	race = env.startRace(t, race, owner, r1, r2)
	ctx := context.Background()

	require.NoError(t, env.races.Cancel(ctx, race, owner))

	for _, u := range []*models.User{r1, r2} {
		entrant, err := env.repo.GetEntrant(ctx, race.ID, u.ID)
		require.NoError(t, err)
		assert.True(t, entrant.Dnf)
	}
}

func TestInviteAlreadyEntrant(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	guest := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, true)
	ctx := context.Background()

	require.NoError(t, env.races.Invite(ctx, race, owner, guest))
	err := env.races.Invite(ctx, race, owner, guest)
	require.Error(t, err)
	assert.EqualError(t, err, "bob is already an entrant.")
}

func TestInviteBannedUser(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	banned := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, true)
	ctx := context.Background()

	require.NoError(t, env.repo.DB().Model(banned).Association("BannedFrom").Append(category))
	err := env.races.Invite(ctx, race, owner, env.mustGetUser(t, "bob"))
	require.Error(t, err)
	assert.EqualError(t, err, "bob is not allowed to join this race.")
}

func TestRecordAssignsScoreChanges(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	race = env.startRace(t, race, owner, r1, r2)
	ctx := context.Background()

	require.NoError(t, env.races.Done(ctx, race, r1))
	// Widen the gap so the two finish times cannot land in the same second.
	race = env.backdateStart(t, race, time.Minute)
	require.NoError(t, env.races.Done(ctx, race, r2))

	race = env.reloadRace(t, race)
	require.Equal(t, models.RaceStateFinished, race.State)

	require.NoError(t, env.races.Record(ctx, race, owner))
	race = env.reloadRace(t, race)
	assert.True(t, race.Recorded)
	require.NotNil(t, race.RecordedByID)

	first, err := env.repo.GetEntrant(ctx, race.ID, r1.ID)
	require.NoError(t, err)
	second, err := env.repo.GetEntrant(ctx, race.ID, r2.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ScoreChange)
	require.NotNil(t, second.ScoreChange)
	assert.True(t, first.ScoreChange.GreaterThan(*second.ScoreChange))
}

func TestRecordRequiresModerator(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	race = env.startRace(t, race, owner, r1, r2)
	ctx := context.Background()

	require.NoError(t, env.races.Done(ctx, race, r1))
	require.NoError(t, env.races.Done(ctx, race, r2))
	race = env.reloadRace(t, race)

	// r1 is an entrant but not a category moderator.
	err := env.races.Record(ctx, race, r1)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestUnrecordThenRecordFails(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	race = env.startRace(t, race, owner, r1, r2)
	ctx := context.Background()

	require.NoError(t, env.races.Done(ctx, race, r1))
	require.NoError(t, env.races.Done(ctx, race, r2))
	race = env.reloadRace(t, race)

	require.NoError(t, env.races.Unrecord(ctx, race, owner))
	race = env.reloadRace(t, race)
	assert.False(t, race.Recordable)

	err := env.races.Record(ctx, race, owner)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))
}

func TestAddAndRemoveMonitor(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	helper := env.createUser(t, "bob")
	stranger := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	// Not a monitor yet.
	err := env.races.Close(ctx, race, helper)
	require.Error(t, err)

	require.NoError(t, env.races.AddMonitor(ctx, race, owner, helper))
	race = env.reloadRace(t, race)
	require.NoError(t, env.races.Close(ctx, race, helper))

	// Monitors cannot be promoted twice.
	err = env.races.AddMonitor(ctx, race, owner, helper)
	assert.True(t, domain.IsSafe(err))

	require.NoError(t, env.races.RemoveMonitor(ctx, race, owner, helper))
	err = env.races.RemoveMonitor(ctx, race, owner, stranger)
	assert.True(t, domain.IsSafe(err))
}

func TestEditRaceAuditsChangedFields(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	info := "settings: glitchless"
	streaming := true
	require.NoError(t, env.races.Edit(ctx, race, owner, EditRaceInput{
		Info:              &info,
		StreamingRequired: &streaming,
	}))

	reloaded := env.reloadRace(t, race)
	require.NotNil(t, reloaded.Info)
	assert.Equal(t, info, *reloaded.Info)
	assert.True(t, reloaded.StreamingRequired)

	payload, err := env.chats.Data(ctx, reloaded, owner, "")
	require.NoError(t, err)
	var texts []string
	for _, m := range payload.Messages {
		texts = append(texts, m.Message)
	}
	assert.Contains(t, texts, "alice updated the race information.")
	assert.Contains(t, texts, "alice turned on the streaming requirement.")
}

func TestEditRaceOnlyWhilePreparing(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	race = env.startRace(t, race, owner, r1, r2)

	info := "too late"
	err := env.races.Edit(context.Background(), race, owner, EditRaceInput{Info: &info})
	require.Error(t, err)
	assert.EqualError(t, err, "Race settings can no longer be changed.")
}

func TestSweepStaleCancelsOldRooms(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	// One lonely entrant and past the short limit: swept.
	env.races.SweepStale(ctx, race.OpenedAt.Add(models.OpenTimeLimitLowEntrants+time.Minute))
	assert.Equal(t, models.RaceStateCancelled, env.reloadRace(t, race).State)
}

func TestSweepStaleKeepsBusyYoungRooms(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Join(ctx, race, r1))
	require.NoError(t, env.races.Join(ctx, race, r2))

	// Two entrants and under the general limit: left alone.
	env.races.SweepStale(ctx, race.OpenedAt.Add(models.OpenTimeLimitLowEntrants+time.Minute))
	assert.Equal(t, models.RaceStateOpen, env.reloadRace(t, race).State)

	// Past the general limit: swept regardless of entrants.
	env.races.SweepStale(ctx, race.OpenedAt.Add(models.OpenTimeLimit+time.Minute))
	assert.Equal(t, models.RaceStateCancelled, env.reloadRace(t, race).State)
}

func TestSweepOverdueFinishesTimedOutRace(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	race = env.startRace(t, race, owner, r1, r2)
	ctx := context.Background()

	env.races.SweepOverdue(ctx, race.StartedAt.Add(race.TimeLimit).Add(time.Minute))

	reloaded := env.reloadRace(t, race)
	assert.Equal(t, models.RaceStateFinished, reloaded.State)
	// Nobody finished, so the result is not recordable.
	assert.False(t, reloaded.Recordable)

	entrant, err := env.repo.GetEntrant(ctx, race.ID, r1.ID)
	require.NoError(t, err)
	assert.True(t, entrant.Dnf)
}
