package jobs

import (
	"context"
	"log"
	"time"

	"raceroom/internal/services"
)

// Sweeper periodically cancels stale race rooms and force-finishes races
// that have run past their time limit.
type Sweeper struct {
	raceService *services.RaceService
	interval    time.Duration
	stopChan    chan struct{}
}

// NewSweeper creates a new race sweeper job
func NewSweeper(raceService *services.RaceService, interval time.Duration) *Sweeper {
	return &Sweeper{
		raceService: raceService,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	log.Printf("[Sweeper] Starting race sweeper job (interval: %v)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			log.Println("[Sweeper] Stopping race sweeper job")
			return
		}
	}
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) sweep() {
	ctx := context.Background()
	now := time.Now()
	s.raceService.SweepStale(ctx, now)
	s.raceService.SweepOverdue(ctx, now)
}
