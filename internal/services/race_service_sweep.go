package services

import (
	"context"
	"log"
	"time"

	"raceroom/internal/models"
	"raceroom/internal/repository"
)

// Housekeeping entry points for the background sweeper. These run without an
// acting user; audit messages come from the system account.

// SweepStale cancels race rooms that have been sitting in preparation for
// too long: past the general open limit, or past the short limit with too
// few entrants to ever begin.
func (s *RaceService) SweepStale(ctx context.Context, now time.Time) {
	races, err := s.repo.StaleOpenRaces(ctx, now)
	if err != nil {
		log.Printf("[RaceService] Failed to fetch stale races: %v", err)
		return
	}

	for _, race := range races {
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			locked, err := tx.GetRaceForUpdate(ctx, race.ID)
			if err != nil {
				return err
			}
			if !locked.IsPreparing() && !locked.IsPending() {
				return nil
			}

			age := now.Sub(locked.OpenedAt)
			joined, err := tx.CountJoinedEntrants(ctx, locked.ID)
			if err != nil {
				return err
			}
			lowEntrants := joined < models.MinEntrantsToBegin
			if age <= models.OpenTimeLimit && !(lowEntrants && age > models.OpenTimeLimitLowEntrants) {
				return nil
			}

			locked.State = models.RaceStateCancelled
			locked.Recordable = false
			locked.EndedAt = &now
			if err := tx.SaveRace(ctx, locked); err != nil {
				return err
			}
			log.Printf("[RaceService] Swept stale race %s (age %v, %d entrants)",
				locked.Name(), age.Truncate(time.Second), joined)
			return s.audit(ctx, tx, locked, "This race has been automatically cancelled.", true)
		})
		if err != nil {
			log.Printf("[RaceService] Failed to sweep race %s: %v", race.Name(), err)
			continue
		}
		s.invalidate(ctx, race)
	}
}

// SweepOverdue force-finishes races that have run past their time limit,
// marking everyone still racing as DNF.
func (s *RaceService) SweepOverdue(ctx context.Context, now time.Time) {
	races, err := s.repo.OverdueRaces(ctx, now)
	if err != nil {
		log.Printf("[RaceService] Failed to fetch overdue races: %v", err)
		return
	}

	for _, race := range races {
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			locked, err := tx.GetRaceForUpdate(ctx, race.ID)
			if err != nil {
				return err
			}
			if !locked.IsInProgress() || locked.Timer(now) <= locked.TimeLimit {
				return nil
			}

			log.Printf("[RaceService] Race %s exceeded its time limit", locked.Name())
			return s.finish(ctx, tx, locked)
		})
		if err != nil {
			log.Printf("[RaceService] Failed to finish overdue race %s: %v", race.Name(), err)
			continue
		}
		s.invalidate(ctx, race)
	}
}
