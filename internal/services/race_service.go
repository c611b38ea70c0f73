package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"raceroom/internal/cache"
	"raceroom/internal/domain"
	"raceroom/internal/ids"
	"raceroom/internal/models"
	"raceroom/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RaceService owns the race room state machine: lifecycle transitions,
// entrant transitions and the audit trail they leave in chat. Every mutating
// method re-checks the actor's capability at call time and runs its writes
// in a single transaction.
type RaceService struct {
	repo        *repository.Repository
	cache       cache.Cache
	snapshotTTL time.Duration
	categories  *CategoryService
}

func NewRaceService(repo *repository.Repository, c cache.Cache, snapshotTTL time.Duration, categories *CategoryService) *RaceService {
	return &RaceService{
		repo:        repo,
		cache:       c,
		snapshotTTL: snapshotTTL,
		categories:  categories,
	}
}

// CreateRaceInput carries the race creation form.
type CreateRaceInput struct {
	GoalID            *uuid.UUID
	CustomGoal        *string
	Invitational      bool
	Info              *string
	StartDelay        time.Duration
	TimeLimit         time.Duration
	StreamingRequired *bool
	ChatMessageDelay  time.Duration
	AllowComments     *bool
	AllowMidraceChat  *bool
}

// Create opens a new race room in the category. Non-staff users may only
// have one non-terminal race open at a time.
func (s *RaceService) Create(ctx context.Context, category *models.Category, opener *models.User, input CreateRaceInput) (*models.Race, error) {
	if !CanStartRace(category, opener) {
		return nil, domain.Safe("You are not allowed to start races in this category.")
	}

	if !opener.Staff {
		open, err := s.repo.UserHasNonTerminalRace(ctx, opener.ID)
		if err != nil {
			return nil, err
		}
		if open {
			return nil, domain.Safe("You can only have one open race room at a time.")
		}
	}

	race := &models.Race{
		ID:                uuid.New(),
		CategoryID:        category.ID,
		Category:          category,
		State:             models.RaceStateOpen,
		OpenedByID:        opener.ID,
		OpenedBy:          opener,
		Recordable:        true,
		StartDelay:        models.DefaultStartDelay,
		TimeLimit:         models.DefaultTimeLimit,
		StreamingRequired: category.StreamingRequired,
		AllowComments:     true,
		AllowMidraceChat:  true,
		ChatMessageDelay:  input.ChatMessageDelay,
	}
	if input.Invitational {
		race.State = models.RaceStateInvitational
	}

	switch {
	case input.GoalID != nil && input.CustomGoal != nil:
		return nil, domain.Safe("Either select a goal or enter a custom goal, not both.")
	case input.GoalID != nil:
		goal, err := s.repo.GetGoal(ctx, category.ID, *input.GoalID)
		if err != nil {
			return nil, err
		}
		if !goal.Active {
			return nil, domain.Safe("That goal is no longer available for new races.")
		}
		race.GoalID = &goal.ID
		race.Goal = goal
	case input.CustomGoal != nil && *input.CustomGoal != "":
		race.CustomGoal = input.CustomGoal
		// Custom races cannot be recorded.
		race.Recordable = false
	default:
		return nil, domain.Safe("A race needs a goal.")
	}

	race.Info = input.Info
	if input.StartDelay != 0 {
		if input.StartDelay < models.MinStartDelay || input.StartDelay > models.MaxStartDelay {
			return nil, domain.Safe("Start delay must be between 10 and 60 seconds.")
		}
		race.StartDelay = input.StartDelay
	}
	if input.TimeLimit != 0 {
		if input.TimeLimit < models.MinTimeLimit || input.TimeLimit > models.MaxTimeLimit {
			return nil, domain.Safe("Time limit must be between 1 and 24 hours.")
		}
		race.TimeLimit = input.TimeLimit
	}
	if input.ChatMessageDelay < 0 || input.ChatMessageDelay > models.MaxChatDelay {
		return nil, domain.Safe("Chat delay must be between 0 and 30 seconds.")
	}
	if input.StreamingRequired != nil {
		race.StreamingRequired = *input.StreamingRequired
	}
	if input.AllowComments != nil {
		race.AllowComments = *input.AllowComments
	}
	if input.AllowMidraceChat != nil {
		race.AllowMidraceChat = *input.AllowMidraceChat
	}

	// The existence check inside the generator is best effort; the unique
	// constraint on (category, slug) decides, and a conflict buys another
	// attempt. Any other insert failure propagates as-is.
	var createErr error
	for attempt := 0; attempt < 3; attempt++ {
		slug, err := s.categories.GenerateRaceSlug(ctx, category)
		if err != nil {
			return nil, err
		}
		race.Slug = slug
		if createErr = s.repo.CreateRace(ctx, race); createErr == nil {
			break
		}
		if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return nil, createErr
		}
	}
	if createErr != nil {
		return nil, domain.Safe(
			"Cannot generate a distinct race slug. There may not be enough slug words available.",
		)
	}

	s.invalidate(ctx, race)
	log.Printf("[RaceService] Race %s opened by %s", race.Name(), opener.Name)
	return race, nil
}

// Get retrieves a race by category and race slug, fully preloaded.
func (s *RaceService) Get(ctx context.Context, categorySlug, raceSlug string) (*models.Race, error) {
	return s.repo.GetRace(ctx, categorySlug, raceSlug)
}

// InRace returns the user's entrant record in the race, or nil.
func (s *RaceService) InRace(ctx context.Context, race *models.Race, user *models.User) (*models.Entrant, error) {
	if user == nil {
		return nil, nil
	}
	entrant, err := s.repo.GetEntrant(ctx, race.ID, user.ID)
	if err == domain.ErrEntrantNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entrant, nil
}

// CanJoin determines if the user is allowed to join the race.
func (s *RaceService) CanJoin(ctx context.Context, race *models.Race, user *models.User) (bool, error) {
	if user == nil || !user.Active {
		return false, nil
	}
	if race.Category != nil && user.IsBannedFromCategory(race.Category.ID) {
		return false, nil
	}
	entrant, err := s.InRace(ctx, race, user)
	if err != nil {
		return false, err
	}
	if entrant != nil {
		return false, nil
	}
	if race.StreamingRequired && user.TwitchChannel == nil {
		return false, nil
	}
	active, err := s.repo.UserHasActiveEntry(ctx, user.ID)
	if err != nil {
		return false, err
	}
	return !active, nil
}

// CanBegin reports whether the race has enough ready entrants to start.
func (s *RaceService) CanBegin(ctx context.Context, race *models.Race) (bool, error) {
	if !race.IsPending() {
		return false, nil
	}
	ready, err := s.repo.CountReadyEntrants(ctx, race.ID)
	if err != nil {
		return false, err
	}
	return ready >= models.MinEntrantsToBegin, nil
}

// JSONData returns the cached race snapshot, recomputing it on expiry.
func (s *RaceService) JSONData(ctx context.Context, race *models.Race) (string, error) {
	return s.cache.GetOrSet(ctx, snapshotKey(race.Name()), s.snapshotTTL, func() (string, error) {
		return s.DumpJSONData(ctx, race)
	})
}

// DumpJSONData computes the full race snapshot including ordered entrants.
func (s *RaceService) DumpJSONData(ctx context.Context, race *models.Race) (string, error) {
	entrants, err := s.orderedEntrants(ctx, race)
	if err != nil {
		return "", err
	}

	entrantSnapshots := make([]EntrantSnapshot, 0, len(entrants))
	var count, inactive int64
	for _, e := range entrants {
		if e.State == models.EntrantStateJoined {
			count++
			if e.Dnf || e.Dq {
				inactive++
			}
		}
		snap := EntrantSnapshot{
			ID:             ids.Encode(e.ID),
			Status:         e.Summary(race),
			FinishTime:     e.FinishTime,
			Place:          e.Place,
			ScoreChange:    e.ScoreChange,
			Comment:        e.Comment,
			StreamLive:     e.StreamLive,
			StreamOverride: e.StreamOverride,
		}
		if e.User != nil {
			snap.User = e.User.APISummary()
		}
		if e.Place != nil {
			o := ordinal(*e.Place)
			snap.PlaceOrdinal = &o
		}
		entrantSnapshots = append(entrantSnapshots, snap)
	}

	monitors := make([]models.Summary, 0, len(race.Monitors))
	for _, m := range race.Monitors {
		monitors = append(monitors, m.APISummary())
	}

	snapshot := RaceSnapshot{
		Name:                  race.Name(),
		Status:                race.State.Info(),
		URL:                   "/" + race.Name(),
		DataURL:               "/" + race.Name() + "/data",
		Goal:                  GoalInfo{Name: race.GoalStr(), Custom: race.HasCustomGoal()},
		Info:                  race.Info,
		EntrantsCount:         count,
		EntrantsCountInactive: inactive,
		Entrants:              entrantSnapshots,
		OpenedAt:              race.OpenedAt,
		StartDelay:            race.StartDelay,
		StartedAt:             race.StartedAt,
		EndedAt:               race.EndedAt,
		TimeLimit:             race.TimeLimit,
		Monitors:              monitors,
		Recordable:            race.Recordable,
		Recorded:              race.Recorded,
		StreamingRequired:     race.StreamingRequired,
		AllowComments:         race.AllowComments,
		AllowMidraceChat:      race.AllowMidraceChat,
		AllowNonEntrantChat:   race.AllowNonEntrantChat,
		ChatMessageDelay:      race.ChatMessageDelay,
	}
	if race.Category != nil {
		snapshot.Category = race.Category.APISummary()
	}
	if race.OpenedBy != nil {
		snapshot.OpenedBy = race.OpenedBy.APISummary()
	}
	if race.RecordedBy != nil {
		summary := race.RecordedBy.APISummary()
		snapshot.RecordedBy = &summary
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// orderedEntrants sorts entrants for display: finished by place, then
// racing/ready, not ready, invited, requested, DNF, DQ, declined.
func (s *RaceService) orderedEntrants(ctx context.Context, race *models.Race) ([]*models.Entrant, error) {
	entrants, err := s.repo.ListEntrants(ctx, race.ID)
	if err != nil {
		return nil, err
	}

	rank := func(e *models.Entrant) int {
		switch {
		case e.Place != nil && !e.Dnf && !e.Dq:
			return 1
		case e.State == models.EntrantStateJoined && e.Place == nil && e.Ready && !e.Dnf && !e.Dq:
			return 2
		case e.State == models.EntrantStateJoined && !e.Ready:
			return 3
		case e.State == models.EntrantStateInvited:
			return 4
		case e.State == models.EntrantStateRequested:
			return 5
		case e.Dnf:
			return 6
		case e.Dq:
			return 7
		case e.State == models.EntrantStateDeclined:
			return 8
		default:
			return 9
		}
	}

	sort.SliceStable(entrants, func(i, j int) bool {
		ri, rj := rank(entrants[i]), rank(entrants[j])
		if ri != rj {
			return ri < rj
		}
		pi, pj := entrants[i].Place, entrants[j].Place
		if pi != nil && pj != nil && *pi != *pj {
			return *pi < *pj
		}
		fi, fj := entrants[i].FinishTime, entrants[j].FinishTime
		if fi != nil && fj != nil {
			return *fi < *fj
		}
		return false
	})
	return entrants, nil
}

// audit appends a system-generated chat message to the race, inside the
// caller's transaction.
func (s *RaceService) audit(ctx context.Context, tx *repository.Repository, race *models.Race, text string, highlight bool) error {
	system, err := tx.GetSystemUser(ctx)
	if err != nil {
		return err
	}
	return tx.CreateMessage(ctx, &models.Message{
		ID:        uuid.New(),
		RaceID:    race.ID,
		UserID:    system.ID,
		Message:   text,
		Highlight: highlight,
	})
}

// dnfRemaining marks every entrant still racing as DNF.
func (s *RaceService) dnfRemaining(ctx context.Context, tx *repository.Repository, race *models.Race) error {
	running, err := tx.RunningEntrants(ctx, race.ID)
	if err != nil {
		return err
	}
	for _, e := range running {
		e.Dnf = true
		if err := tx.SaveEntrant(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// recalculatePlaces reassigns finishing places by finish time.
func (s *RaceService) recalculatePlaces(ctx context.Context, tx *repository.Repository, race *models.Race) error {
	finished, err := tx.FinishedEntrants(ctx, race.ID)
	if err != nil {
		return err
	}
	for i, e := range finished {
		place := i + 1
		e.Place = &place
		if err := tx.SaveEntrant(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// finishIfNoneRemaining finishes the race once every entrant has resolved.
func (s *RaceService) finishIfNoneRemaining(ctx context.Context, tx *repository.Repository, race *models.Race) error {
	running, err := tx.RunningEntrants(ctx, race.ID)
	if err != nil {
		return err
	}
	if len(running) > 0 {
		return nil
	}
	return s.finish(ctx, tx, race)
}

// finish moves an in-progress race to finished.
func (s *RaceService) finish(ctx context.Context, tx *repository.Repository, race *models.Race) error {
	if !race.IsInProgress() {
		return domain.Safe("Cannot finish a race that has not been started.")
	}

	now := time.Now()
	race.State = models.RaceStateFinished
	race.EndedAt = &now

	finished, err := tx.FinishedEntrants(ctx, race.ID)
	if err != nil {
		return err
	}
	if len(finished) == 0 {
		// Nobody finished, so the race should not be recorded.
		race.Recordable = false
	}
	if err := tx.SaveRace(ctx, race); err != nil {
		return err
	}
	if err := s.dnfRemaining(ctx, tx, race); err != nil {
		return err
	}
	return s.audit(ctx, tx, race,
		fmt.Sprintf("Race finished in %s", timerStr(race.Timer(now))), true)
}

// invalidate drops the race and category snapshots after a mutation.
func (s *RaceService) invalidate(ctx context.Context, race *models.Race) {
	if err := s.cache.Delete(ctx, snapshotKey(race.Name())); err != nil {
		log.Printf("[RaceService] Failed to invalidate race snapshot: %v", err)
	}
	if race.Category != nil {
		if err := s.categories.InvalidateSnapshot(ctx, race.Category); err != nil {
			log.Printf("[RaceService] Failed to invalidate category snapshot: %v", err)
		}
	}
}
