package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/ids"
	"raceroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatPostAndOrdering(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	runner := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Join(ctx, race, runner))

	_, err := env.chats.Post(ctx, race, runner, "glhf", false)
	require.NoError(t, err)
	_, err = env.chats.Post(ctx, race, owner, "you too", false)
	require.NoError(t, err)

	payload, err := env.chats.Data(ctx, race, runner, "")
	require.NoError(t, err)

	// The join audit message comes first, then the two user messages in
	// posting order.
	var texts []string
	for _, m := range payload.Messages {
		texts = append(texts, m.Message)
	}
	require.GreaterOrEqual(t, len(texts), 3)
	assert.Equal(t, "you too", texts[len(texts)-1])
	assert.Equal(t, "glhf", texts[len(texts)-2])
	assert.Contains(t, texts, "bob joins the race.")
}

func TestChatSystemMessagesHaveNoUser(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Close(ctx, race, owner))

	payload, err := env.chats.Data(ctx, race, owner, "")
	require.NoError(t, err)
	require.NotEmpty(t, payload.Messages)
	for _, m := range payload.Messages {
		assert.True(t, m.IsSystem)
		assert.Nil(t, m.User)
	}
}

func TestChatCursorPagination(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	first, err := env.chats.Post(ctx, race, owner, "one", false)
	require.NoError(t, err)
	_, err = env.chats.Post(ctx, race, owner, "two", false)
	require.NoError(t, err)

	payload, err := env.chats.Data(ctx, race, owner, ids.Encode(first.ID))
	require.NoError(t, err)
	require.Len(t, payload.Messages, 1)
	assert.Equal(t, "two", payload.Messages[0].Message)

	// The end cursor resumes past everything seen so far.
	require.NotNil(t, payload.End)
	next, err := env.chats.Data(ctx, race, owner, *payload.End)
	require.NoError(t, err)
	assert.Empty(t, next.Messages)
}

func TestChatInvalidCursor(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)

	_, err := env.chats.Data(context.Background(), race, owner, "not-a-cursor")
	require.Error(t, err)
	assert.EqualError(t, err, "Invalid chat cursor.")
}

func TestChatMessageLimits(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	_, err := env.chats.Post(ctx, race, owner, "   ", false)
	require.Error(t, err)
	assert.True(t, domain.IsSafe(err))

	_, err = env.chats.Post(ctx, race, owner, strings.Repeat("a", 1001), false)
	require.Error(t, err)
	assert.EqualError(t, err, "Messages are limited to 1000 characters.")
}

func TestChatNonEntrantGate(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	stranger := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	_, err := env.chats.Post(ctx, race, stranger, "hi", false)
	require.Error(t, err)
	assert.EqualError(t, err, "Only entrants may chat in this race.")

	race.AllowNonEntrantChat = true
	require.NoError(t, env.repo.SaveRace(ctx, race))
	race = env.reloadRace(t, race)

	_, err = env.chats.Post(ctx, race, stranger, "hi", false)
	require.NoError(t, err)
}

func TestChatMidraceGate(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	race.AllowMidraceChat = false
	require.NoError(t, env.repo.SaveRace(ctx, race))
	race = env.reloadRace(t, race)
	race = env.startRace(t, race, owner, r1, r2)

	_, err := env.chats.Post(ctx, race, r1, "split?", false)
	require.Error(t, err)
	assert.EqualError(t, err, "You cannot chat while the race is in progress.")

	// Monitors are exempt from the midrace gate.
	_, err = env.chats.Post(ctx, race, owner, "settle down", false)
	require.NoError(t, err)
}

func TestChatDeleteVisibility(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	runner := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Join(ctx, race, runner))
	message, err := env.chats.Post(ctx, race, runner, "rude thing", false)
	require.NoError(t, err)

	require.NoError(t, env.chats.Delete(ctx, race, owner, message.ID))

	// Non-monitors no longer see the message.
	payload, err := env.chats.Data(ctx, race, runner, "")
	require.NoError(t, err)
	for _, m := range payload.Messages {
		assert.NotEqual(t, "rude thing", m.Message)
	}

	// Monitors see it flagged with who removed it.
	payload, err = env.chats.Data(ctx, race, owner, "")
	require.NoError(t, err)
	var found bool
	for _, m := range payload.Messages {
		if m.Message == "rude thing" {
			found = true
			assert.True(t, m.Deleted)
			require.NotNil(t, m.DeletedBy)
			assert.Equal(t, "alice", m.DeletedBy.Name)
		}
	}
	assert.True(t, found)
}

func TestChatDeleteTwiceFails(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	runner := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Join(ctx, race, runner))
	message, err := env.chats.Post(ctx, race, runner, "oops", false)
	require.NoError(t, err)

	require.NoError(t, env.chats.Delete(ctx, race, owner, message.ID))
	err = env.chats.Delete(ctx, race, owner, message.ID)
	require.Error(t, err)
	assert.EqualError(t, err, "Cannot delete a message that is already deleted.")
}

func TestChatDeleteRequiresMonitor(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	runner := env.createUser(t, "bob")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Join(ctx, race, runner))
	message, err := env.chats.Post(ctx, race, owner, "hello", false)
	require.NoError(t, err)

	err = env.chats.Delete(ctx, race, runner, message.ID)
	require.Error(t, err)
	assert.EqualError(t, err, "Only race monitors may delete messages.")
}

func TestChatSystemMessagesUndeletable(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	require.NoError(t, env.races.Close(ctx, race, owner))

	payload, err := env.chats.Data(ctx, race, owner, "")
	require.NoError(t, err)
	require.NotEmpty(t, payload.Messages)

	systemID, err := ids.Decode(payload.Messages[0].ID)
	require.NoError(t, err)

	err = env.chats.Delete(ctx, race, owner, systemID)
	require.Error(t, err)
	assert.EqualError(t, err, "System messages cannot be deleted.")
}

func TestHeldForDelay(t *testing.T) {
	now := time.Now()
	race := &models.Race{State: models.RaceStateInProgress, ChatMessageDelay: 10 * time.Second}

	assert.True(t, HeldForDelay(race, false, now.Add(-time.Second), now))
	assert.False(t, HeldForDelay(race, false, now.Add(-time.Minute), now))
	// System messages bypass the delay.
	assert.False(t, HeldForDelay(race, true, now.Add(-time.Second), now))

	race.ChatMessageDelay = 0
	assert.False(t, HeldForDelay(race, false, now.Add(-time.Second), now))

	race.ChatMessageDelay = 10 * time.Second
	race.State = models.RaceStateOpen
	assert.False(t, HeldForDelay(race, false, now.Add(-time.Second), now))
}

func TestChatDelayDoesNotAdvanceCursorPastHeldMessages(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	delay := 30 * time.Second
	require.NoError(t, env.races.Edit(ctx, race, owner, EditRaceInput{ChatMessageDelay: &delay}))
	race = env.reloadRace(t, race)
	race = env.startRace(t, race, owner, r1, r2)

	_, err := env.chats.Post(ctx, race, r1, "gl all", false)
	require.NoError(t, err)
	// The finish announcement lands after the held-back message.
	require.NoError(t, env.races.Done(ctx, race, r1))

	full, err := env.chats.Data(ctx, race, owner, "")
	require.NoError(t, err)
	heldIdx := -1
	for i, m := range full.Messages {
		if m.Message == "gl all" {
			heldIdx = i
		}
	}
	require.GreaterOrEqual(t, heldIdx, 1)

	// Non-monitors get the page truncated before the held message; the End
	// cursor stops there too, so a later poll still delivers it once the
	// delay expires.
	page, err := env.chats.Data(ctx, race, r2, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, heldIdx)
	require.NotNil(t, page.End)
	assert.Equal(t, full.Messages[heldIdx-1].ID, *page.End)
}

func TestChatDelayHidesFreshMessagesFromNonMonitors(t *testing.T) {
	env := setupTest(t)
	owner := env.createUser(t, "alice")
	r1 := env.createUser(t, "bob")
	r2 := env.createUser(t, "carol")
	category := env.createCategory(t, owner)
	race := env.createRace(t, category, owner, false)
	ctx := context.Background()

	delay := 30 * time.Second
	require.NoError(t, env.races.Edit(ctx, race, owner, EditRaceInput{ChatMessageDelay: &delay}))
	race = env.reloadRace(t, race)
	race = env.startRace(t, race, owner, r1, r2)

	_, err := env.chats.Post(ctx, race, r1, "spoiler", false)
	require.NoError(t, err)

	payload, err := env.chats.Data(ctx, race, r2, "")
	require.NoError(t, err)
	for _, m := range payload.Messages {
		assert.NotEqual(t, "spoiler", m.Message)
	}

	// Monitors see the message immediately.
	payload, err = env.chats.Data(ctx, race, owner, "")
	require.NoError(t, err)
	var found bool
	for _, m := range payload.Messages {
		if m.Message == "spoiler" {
			found = true
		}
	}
	assert.True(t, found)
}
