package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raceroom/internal/domain"
	"raceroom/internal/models"
	"raceroom/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Monitor and moderator actions. Each one re-fetches the race under a row
// lock, re-checks the actor's capability and applies its state guard before
// mutating, so a stale snapshot on the caller's side can never bypass a
// transition rule.

// Close stops the race accepting new entrants, moving it to pending.
func (s *RaceService) Close(ctx context.Context, race *models.Race, by *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if !locked.IsPreparing() {
			return domain.Safe(fmt.Sprintf(
				"This race cannot be closed to entrants (it is %s).",
				strings.ToLower(locked.State.Info().VerboseValue),
			))
		}

		locked.State = models.RaceStatePending
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("%s closed the race to new entrants.", by.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Reopen returns a pending race to open (or invitational) so entrants can
// change again.
func (s *RaceService) Reopen(ctx context.Context, race *models.Race, by *models.User, invitational bool) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if !locked.IsPending() {
			return domain.Safe(fmt.Sprintf(
				"This race cannot be reopened (it is %s).",
				strings.ToLower(locked.State.Info().VerboseValue),
			))
		}

		locked.State = models.RaceStateOpen
		if invitational {
			locked.State = models.RaceStateInvitational
		}
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("%s reopened the race for entrants.", by.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Begin starts a pending race. Entrants who have not readied up are dropped
// from the race, and the clock starts after the start delay.
func (s *RaceService) Begin(ctx context.Context, race *models.Race, by *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if !locked.IsPending() {
			return domain.Safe(fmt.Sprintf(
				"This race cannot be started (it is %s).",
				strings.ToLower(locked.State.Info().VerboseValue),
			))
		}
		ready, err := tx.CountReadyEntrants(ctx, locked.ID)
		if err != nil {
			return err
		}
		if ready < models.MinEntrantsToBegin {
			return domain.Safe(fmt.Sprintf(
				"At least %d entrants must be ready before the race can begin.",
				models.MinEntrantsToBegin,
			))
		}

		if err := tx.DeleteUnreadyEntrants(ctx, locked.ID); err != nil {
			return err
		}
		startedAt := time.Now().Add(locked.StartDelay)
		locked.State = models.RaceStateInProgress
		locked.StartedAt = &startedAt
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("Race begins in %d seconds!", int(locked.StartDelay.Seconds())), true)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Cancel aborts any race that has not yet reached a terminal state. If the
// race had started, remaining entrants are marked DNF.
func (s *RaceService) Cancel(ctx context.Context, race *models.Race, by *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if locked.IsDone() {
			return domain.Safe(fmt.Sprintf(
				"This race is already %s.",
				strings.ToLower(locked.State.Info().VerboseValue),
			))
		}

		wasInProgress := locked.IsInProgress()
		now := time.Now()
		locked.State = models.RaceStateCancelled
		locked.Recordable = false
		locked.EndedAt = &now
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		if wasInProgress {
			if err := s.dnfRemaining(ctx, tx, locked); err != nil {
				return err
			}
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("This race has been cancelled by %s.", by.Name), true)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Record marks a finished race as recorded and applies score changes to the
// finishers. Only category moderators may record results.
func (s *RaceService) Record(ctx context.Context, race *models.Race, by *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.Category == nil || !CanModerate(locked.Category, by) {
			return domain.Safe("Only category moderators may record race results.")
		}
		if !locked.Recordable || locked.Recorded {
			return domain.Safe("This race cannot be recorded.")
		}
		if locked.State != models.RaceStateFinished {
			return domain.Safe("Only finished races can be recorded.")
		}

		finished, err := tx.FinishedEntrants(ctx, locked.ID)
		if err != nil {
			return err
		}
		for _, e := range finished {
			if e.Place == nil {
				continue
			}
			// Points scale linearly with how many entrants finished below.
			score := decimal.NewFromInt(int64(len(finished) - *e.Place + 1))
			e.ScoreChange = &score
			if err := tx.SaveEntrant(ctx, e); err != nil {
				return err
			}
		}

		locked.Recorded = true
		locked.RecordedByID = &by.ID
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("Race result recorded by %s", by.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Unrecord flags a finished race as not for the records. A race that has
// already been recorded cannot be unrecorded.
func (s *RaceService) Unrecord(ctx context.Context, race *models.Race, by *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.Category == nil || !CanModerate(locked.Category, by) {
			return domain.Safe("Only category moderators may record race results.")
		}
		if !locked.Recordable || locked.Recorded {
			return domain.Safe("This race cannot be unrecorded.")
		}

		locked.Recordable = false
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("Race set to not recorded by %s", by.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Invite adds a user to the race in the invited state.
func (s *RaceService) Invite(ctx context.Context, race *models.Race, by *models.User, target *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if !locked.IsPreparing() {
			return domain.Safe("Entrants can no longer be invited to this race.")
		}

		if _, err := tx.GetEntrant(ctx, locked.ID, target.ID); err == nil {
			return domain.Safe(fmt.Sprintf("%s is already an entrant.", target.Name))
		} else if err != domain.ErrEntrantNotFound {
			return err
		}
		if !target.Active ||
			(locked.Category != nil && target.IsBannedFromCategory(locked.Category.ID)) ||
			(locked.StreamingRequired && target.TwitchChannel == nil) {
			return domain.Safe(fmt.Sprintf("%s is not allowed to join this race.", target.Name))
		}
		active, err := tx.UserHasActiveEntry(ctx, target.ID)
		if err != nil {
			return err
		}
		if active {
			return domain.Safe(fmt.Sprintf("%s is not allowed to join this race.", target.Name))
		}

		entrant := &models.Entrant{
			ID:     uuid.New(),
			RaceID: locked.ID,
			UserID: target.ID,
			State:  models.EntrantStateInvited,
		}
		if err := tx.CreateEntrant(ctx, entrant); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("%s invites %s to join the race.", by.Name, target.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// AddMonitor grants a user race-scoped monitor permission.
func (s *RaceService) AddMonitor(ctx context.Context, race *models.Race, by *models.User, target *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if locked.IsDone() {
			return domain.Safe("This race is over.")
		}
		if CanMonitor(locked, target) {
			return domain.Safe(fmt.Sprintf("%s is already a race monitor.", target.Name))
		}

		if err := tx.AddRaceMonitor(ctx, locked, target); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("%s promoted %s to race monitor.", by.Name, target.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// RemoveMonitor revokes race-scoped monitor permission. Category-level
// moderators and the race opener cannot be demoted this way.
func (s *RaceService) RemoveMonitor(ctx context.Context, race *models.Race, by *models.User, target *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if !locked.HasMonitor(target.ID) {
			return domain.Safe(fmt.Sprintf("%s is not a race monitor.", target.Name))
		}

		if err := tx.RemoveRaceMonitor(ctx, locked, target); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("%s demoted %s from race monitor.", by.Name, target.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// EditRaceInput carries the fields a monitor may change while the race is
// still preparing. Nil fields are untouched.
type EditRaceInput struct {
	GoalID            *uuid.UUID
	CustomGoal        *string
	Info              *string
	StreamingRequired *bool
	ChatMessageDelay  *time.Duration
}

// Edit updates race settings before the race starts, leaving one audit
// message per changed field.
func (s *RaceService) Edit(ctx context.Context, race *models.Race, by *models.User, input EditRaceInput) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		if !locked.IsPreparing() {
			return domain.Safe("Race settings can no longer be changed.")
		}

		var notes []string

		if input.GoalID != nil {
			goal, err := tx.GetGoal(ctx, locked.CategoryID, *input.GoalID)
			if err != nil {
				return err
			}
			if !goal.Active {
				return domain.Safe("That goal is no longer available for new races.")
			}
			locked.GoalID = &goal.ID
			locked.Goal = goal
			locked.CustomGoal = nil
			locked.Recordable = true
			notes = append(notes, fmt.Sprintf("%s changed the goal to %s.", by.Name, goal.Name))
		} else if input.CustomGoal != nil && *input.CustomGoal != "" {
			locked.GoalID = nil
			locked.Goal = nil
			locked.CustomGoal = input.CustomGoal
			locked.Recordable = false
			notes = append(notes, fmt.Sprintf("%s changed the goal to %s.", by.Name, *input.CustomGoal))
		}

		if input.Info != nil && !strEqual(locked.Info, input.Info) {
			locked.Info = input.Info
			notes = append(notes, fmt.Sprintf("%s updated the race information.", by.Name))
		}
		if input.StreamingRequired != nil && locked.StreamingRequired != *input.StreamingRequired {
			locked.StreamingRequired = *input.StreamingRequired
			if *input.StreamingRequired {
				notes = append(notes, fmt.Sprintf("%s turned on the streaming requirement.", by.Name))
			} else {
				notes = append(notes, fmt.Sprintf("%s turned off the streaming requirement.", by.Name))
			}
		}
		if input.ChatMessageDelay != nil && locked.ChatMessageDelay != *input.ChatMessageDelay {
			if *input.ChatMessageDelay < 0 || *input.ChatMessageDelay > models.MaxChatDelay {
				return domain.Safe("Chat delay must be between 0 and 30 seconds.")
			}
			locked.ChatMessageDelay = *input.ChatMessageDelay
			notes = append(notes, fmt.Sprintf("%s set the chat message delay to %s.", by.Name, *input.ChatMessageDelay))
		}

		if len(notes) == 0 {
			return nil
		}
		if err := tx.SaveRace(ctx, locked); err != nil {
			return err
		}
		for _, note := range notes {
			if err := s.audit(ctx, tx, locked, note, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

func strEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
