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
)

// Entrant actions. Self actions act on the caller's own entrant record;
// the gated variants at the bottom act on someone else's and require monitor
// or moderator capability. Everything follows the same shape as the race
// transitions: lock the race row, guard, mutate, audit.

// Join enters the user into an open race.
func (s *RaceService) Join(ctx context.Context, race *models.Race, user *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.State != models.RaceStateOpen {
			return domain.Safe("This race is not open to new entrants.")
		}
		return s.enter(ctx, tx, locked, user, models.EntrantStateJoined,
			fmt.Sprintf("%s joins the race.", user.Name))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// RequestToJoin asks to enter an invitational race.
func (s *RaceService) RequestToJoin(ctx context.Context, race *models.Race, user *models.User) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.State != models.RaceStateInvitational {
			return domain.Safe("This race is not accepting join requests.")
		}
		return s.enter(ctx, tx, locked, user, models.EntrantStateRequested,
			fmt.Sprintf("%s requests to join the race.", user.Name))
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// enter creates the entrant record after the shared eligibility checks.
func (s *RaceService) enter(ctx context.Context, tx *repository.Repository, race *models.Race, user *models.User, state models.EntrantState, note string) error {
	if !user.Active {
		return domain.Safe("Your account is not active.")
	}
	if race.Category != nil && user.IsBannedFromCategory(race.Category.ID) {
		return domain.Safe("You are not allowed to join this race.")
	}
	if _, err := tx.GetEntrant(ctx, race.ID, user.ID); err == nil {
		return domain.Safe("You are already an entrant.")
	} else if err != domain.ErrEntrantNotFound {
		return err
	}
	if race.StreamingRequired && user.TwitchChannel == nil {
		return domain.Safe("You need to set a Twitch channel to enter this race.")
	}
	active, err := tx.UserHasActiveEntry(ctx, user.ID)
	if err != nil {
		return err
	}
	if active {
		return domain.Safe("You are already in another race.")
	}

	entrant := &models.Entrant{
		ID:     uuid.New(),
		RaceID: race.ID,
		UserID: user.ID,
		State:  state,
	}
	if err := tx.CreateEntrant(ctx, entrant); err != nil {
		return err
	}
	return s.audit(ctx, tx, race, note, false)
}

// AcceptInvite turns an invitation into a full entry.
func (s *RaceService) AcceptInvite(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() {
			return "", domain.Safe("This race can no longer be joined.")
		}
		if entrant.State != models.EntrantStateInvited {
			return "", domain.Safe("You have not been invited to this race.")
		}
		// Eligibility can change between invite and accept.
		active, err := tx.UserHasActiveEntry(ctx, user.ID)
		if err != nil {
			return "", err
		}
		if active {
			return "", domain.Safe("You are already in another race.")
		}
		entrant.State = models.EntrantStateJoined
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s accepts an invitation to join.", user.Name), nil
	})
}

// DeclineInvite turns down an invitation.
func (s *RaceService) DeclineInvite(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if entrant.State != models.EntrantStateInvited {
			return "", domain.Safe("You have not been invited to this race.")
		}
		entrant.State = models.EntrantStateDeclined
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s declines an invitation to join.", user.Name), nil
	})
}

// CancelRequest withdraws a pending join request.
func (s *RaceService) CancelRequest(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if entrant.State != models.EntrantStateRequested {
			return "", domain.Safe("You do not have a pending join request.")
		}
		if err := tx.DeleteEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s withdraws a request to join.", user.Name), nil
	})
}

// Leave removes the user from a race that has not started.
func (s *RaceService) Leave(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() && !locked.IsPending() {
			return "", domain.Safe("You can no longer leave this race.")
		}
		if entrant.State != models.EntrantStateJoined {
			return "", domain.Safe("You have not joined this race.")
		}
		if err := tx.DeleteEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s quits the race.", user.Name), nil
	})
}

// Ready declares the entrant ready to begin.
func (s *RaceService) Ready(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() && !locked.IsPending() {
			return "", domain.Safe("The race has already begun.")
		}
		if entrant.State != models.EntrantStateJoined || entrant.Ready {
			return "", domain.Safe("You cannot ready up right now.")
		}
		entrant.Ready = true
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		remaining, err := s.unreadyCount(ctx, tx, locked.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is ready! (%d remaining)", user.Name, remaining), nil
	})
}

// Unready withdraws the entrant's readiness.
func (s *RaceService) Unready(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() && !locked.IsPending() {
			return "", domain.Safe("The race has already begun.")
		}
		if entrant.State != models.EntrantStateJoined || !entrant.Ready {
			return "", domain.Safe("You are not ready.")
		}
		entrant.Ready = false
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		remaining, err := s.unreadyCount(ctx, tx, locked.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is not ready. (%d remaining)", user.Name, remaining), nil
	})
}

// Done records the entrant's finish. The race auto-finishes once nobody is
// left running.
func (s *RaceService) Done(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsInProgress() {
			return "", domain.Safe("The race is not in progress.")
		}
		if !entrant.IsRunning() {
			return "", domain.Safe("You are not racing.")
		}

		finishTime := locked.Timer(time.Now())
		entrant.FinishTime = &finishTime
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		if err := s.recalculatePlaces(ctx, tx, locked); err != nil {
			return "", err
		}
		placed, err := tx.GetEntrantByID(ctx, entrant.ID)
		if err != nil {
			return "", err
		}
		note := fmt.Sprintf("%s has finished in %s place with a time of %s!",
			user.Name, ordinal(*placed.Place), timerStr(finishTime))
		if err := s.audit(ctx, tx, locked, note, true); err != nil {
			return "", err
		}
		if err := s.finishIfNoneRemaining(ctx, tx, locked); err != nil {
			return "", err
		}
		return "", nil
	})
}

// Undone retracts a finish while the race is still in progress.
func (s *RaceService) Undone(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsInProgress() {
			return "", domain.Safe("The race is not in progress.")
		}
		if entrant.FinishTime == nil || entrant.Dnf || entrant.Dq {
			return "", domain.Safe("You have not finished this race.")
		}

		entrant.FinishTime = nil
		entrant.Place = nil
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		if err := s.recalculatePlaces(ctx, tx, locked); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s undoes their finish.", user.Name), nil
	})
}

// Forfeit withdraws the entrant from a race in progress.
func (s *RaceService) Forfeit(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsInProgress() {
			return "", domain.Safe("The race is not in progress.")
		}
		if !entrant.IsRunning() {
			return "", domain.Safe("You are not racing.")
		}

		entrant.Dnf = true
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		note := fmt.Sprintf("%s has forfeited from the race.", user.Name)
		if err := s.audit(ctx, tx, locked, note, true); err != nil {
			return "", err
		}
		if err := s.finishIfNoneRemaining(ctx, tx, locked); err != nil {
			return "", err
		}
		return "", nil
	})
}

// Unforfeit retracts a forfeit while the race is still in progress.
func (s *RaceService) Unforfeit(ctx context.Context, race *models.Race, user *models.User) error {
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsInProgress() {
			return "", domain.Safe("The race is not in progress.")
		}
		if !entrant.Dnf || entrant.Dq {
			return "", domain.Safe("You have not forfeited from this race.")
		}

		entrant.Dnf = false
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s has un-forfeited from the race.", user.Name), nil
	})
}

// AddComment attaches a post-race comment to the entrant's result.
func (s *RaceService) AddComment(ctx context.Context, race *models.Race, user *models.User, comment string) error {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return domain.Safe("A comment cannot be empty.")
	}
	if len(comment) > 200 {
		return domain.Safe("Comments are limited to 200 characters.")
	}
	return s.selfAction(ctx, race, user, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.AllowComments {
			return "", domain.Safe("Comments are not allowed in this race.")
		}
		if entrant.FinishTime == nil && !entrant.Dnf {
			return "", domain.Safe("You can comment once you have finished or forfeited.")
		}

		entrant.Comment = &comment
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s adds a comment: \"%s\"", user.Name, comment), nil
	})
}

// AcceptEntrantRequest approves a pending join request (monitor action).
func (s *RaceService) AcceptEntrantRequest(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID) error {
	return s.monitorEntrantAction(ctx, race, by, entrantID, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() {
			return "", domain.Safe("This race can no longer be joined.")
		}
		if entrant.State != models.EntrantStateRequested {
			return "", domain.Safe(fmt.Sprintf("%s has no pending join request.", entrant.User.Name))
		}
		entrant.State = models.EntrantStateJoined
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s accepts a request to join from %s.", by.Name, entrant.User.Name), nil
	})
}

// ForceUnready unreadies another entrant (monitor action).
func (s *RaceService) ForceUnready(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID) error {
	return s.monitorEntrantAction(ctx, race, by, entrantID, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() && !locked.IsPending() {
			return "", domain.Safe("The race has already begun.")
		}
		if entrant.State != models.EntrantStateJoined || !entrant.Ready {
			return "", domain.Safe(fmt.Sprintf("%s is not ready.", entrant.User.Name))
		}
		entrant.Ready = false
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s unreadies %s.", by.Name, entrant.User.Name), nil
	})
}

// RemoveEntrant drops an entrant before the race starts (monitor action).
func (s *RaceService) RemoveEntrant(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID) error {
	return s.monitorEntrantAction(ctx, race, by, entrantID, func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error) {
		if !locked.IsPreparing() && !locked.IsPending() {
			return "", domain.Safe("Entrants can no longer be removed from this race.")
		}
		if err := tx.DeleteEntrant(ctx, entrant); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s has been removed from the race.", entrant.User.Name), nil
	})
}

// OverrideStream waives the streaming requirement for one entrant
// (moderator action).
func (s *RaceService) OverrideStream(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.Category == nil || !CanModerate(locked.Category, by) {
			return domain.Safe("Only category moderators may do that.")
		}
		entrant, err := tx.GetEntrantByID(ctx, entrantID)
		if err != nil {
			return err
		}
		if entrant.RaceID != locked.ID {
			return domain.ErrEntrantNotFound
		}
		if entrant.StreamOverride {
			return domain.Safe(fmt.Sprintf("%s already has a streaming waiver.", entrant.User.Name))
		}

		entrant.StreamOverride = true
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("Streaming requirement waived for %s.", entrant.User.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Disqualify removes an entrant's result (moderator action). Allowed while
// the race is in progress or finished but not yet recorded.
func (s *RaceService) Disqualify(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.Category == nil || !CanModerate(locked.Category, by) {
			return domain.Safe("Only category moderators may do that.")
		}
		if locked.IsPreparing() || locked.IsPending() || locked.State == models.RaceStateCancelled {
			return domain.Safe("Entrants cannot be disqualified right now.")
		}
		if locked.Recorded {
			return domain.Safe("This race has already been recorded.")
		}
		entrant, err := tx.GetEntrantByID(ctx, entrantID)
		if err != nil {
			return err
		}
		if entrant.RaceID != locked.ID {
			return domain.ErrEntrantNotFound
		}
		if entrant.Dq {
			return domain.Safe(fmt.Sprintf("%s is already disqualified.", entrant.User.Name))
		}

		// The finish time survives so an un-disqualification can restore
		// the result; only the placement is vacated.
		entrant.Dq = true
		entrant.Place = nil
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return err
		}
		if err := s.recalculatePlaces(ctx, tx, locked); err != nil {
			return err
		}
		note := fmt.Sprintf("%s has been disqualified from the race.", entrant.User.Name)
		if err := s.audit(ctx, tx, locked, note, true); err != nil {
			return err
		}
		if locked.IsInProgress() {
			return s.finishIfNoneRemaining(ctx, tx, locked)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// Undisqualify reinstates a disqualified entrant (moderator action). Only
// possible while the race is still in progress; once it ends the
// disqualification stands.
func (s *RaceService) Undisqualify(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if locked.Category == nil || !CanModerate(locked.Category, by) {
			return domain.Safe("Only category moderators may do that.")
		}
		if !locked.IsInProgress() {
			return domain.Safe("Entrants can only be un-disqualified while the race is in progress.")
		}
		entrant, err := tx.GetEntrantByID(ctx, entrantID)
		if err != nil {
			return err
		}
		if entrant.RaceID != locked.ID {
			return domain.ErrEntrantNotFound
		}
		if !entrant.Dq {
			return domain.Safe(fmt.Sprintf("%s is not disqualified.", entrant.User.Name))
		}

		entrant.Dq = false
		if err := tx.SaveEntrant(ctx, entrant); err != nil {
			return err
		}
		// A retained finish time slots back into the standings.
		if err := s.recalculatePlaces(ctx, tx, locked); err != nil {
			return err
		}
		return s.audit(ctx, tx, locked,
			fmt.Sprintf("%s has been un-disqualified from the race.", entrant.User.Name), false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// selfAction runs fn against the caller's own entrant record inside a
// transaction holding the race row lock. When fn returns a non-empty note it
// is posted as the audit message.
func (s *RaceService) selfAction(ctx context.Context, race *models.Race, user *models.User, fn func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error)) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		entrant, err := tx.GetEntrant(ctx, locked.ID, user.ID)
		if err == domain.ErrEntrantNotFound {
			return domain.Safe("You are not in this race.")
		}
		if err != nil {
			return err
		}

		note, err := fn(tx, locked, entrant)
		if err != nil {
			return err
		}
		if note == "" {
			return nil
		}
		return s.audit(ctx, tx, locked, note, false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// monitorEntrantAction runs fn against another user's entrant record after
// verifying the actor holds monitor permission.
func (s *RaceService) monitorEntrantAction(ctx context.Context, race *models.Race, by *models.User, entrantID uuid.UUID, fn func(tx *repository.Repository, locked *models.Race, entrant *models.Entrant) (string, error)) error {
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		locked, err := tx.GetRaceForUpdate(ctx, race.ID)
		if err != nil {
			return err
		}
		if !CanMonitor(locked, by) {
			return domain.Safe("Only race monitors may do that.")
		}
		entrant, err := tx.GetEntrantByID(ctx, entrantID)
		if err != nil {
			return err
		}
		if entrant.RaceID != locked.ID {
			return domain.ErrEntrantNotFound
		}

		note, err := fn(tx, locked, entrant)
		if err != nil {
			return err
		}
		if note == "" {
			return nil
		}
		return s.audit(ctx, tx, locked, note, false)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, race)
	return nil
}

// unreadyCount counts joined entrants who have not readied up.
func (s *RaceService) unreadyCount(ctx context.Context, tx *repository.Repository, raceID uuid.UUID) (int64, error) {
	joined, err := tx.CountJoinedEntrants(ctx, raceID)
	if err != nil {
		return 0, err
	}
	ready, err := tx.CountReadyEntrants(ctx, raceID)
	if err != nil {
		return 0, err
	}
	return joined - ready, nil
}
