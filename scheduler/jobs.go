package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"stablewatch/services/volatility"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	tracker *volatility.Tracker
}

// NewScheduler creates a new scheduler instance
func NewScheduler(tracker *volatility.Tracker) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		tracker: tracker,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start(ctx context.Context) {
	log.Println("Starting scheduler...")

	// Run the volatility tracking pass every hour. The job itself
	// short-circuits per asset once a day's data is in, so the hourly
	// cadence only fills gaps left by earlier failed fetches.
	s.cron.Every(1).Hour().SingletonMode().Do(func() {
		s.tracker.Run(ctx)
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}
