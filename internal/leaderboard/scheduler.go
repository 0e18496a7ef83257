package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// DefaultInterval is how often a scheduled refresher runs.
const DefaultInterval = 15 * time.Minute

// Scheduler runs a Refresher periodically.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *log.Logger
}

// Schedule starts refreshing every interval, beginning immediately. Runs
// never overlap; a slow refresh pushes the next one back.
func Schedule(r *Refresher, interval time.Duration, logger *log.Logger) (*Scheduler, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger = logger.WithPrefix("leaderboard")

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := r.Refresh(ctx); err != nil {
				logger.Error("Scheduled refresh failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("leaderboard-refresh"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}

	sched.Start()
	logger.Info("Leaderboard refresh scheduled", "interval", interval)
	return &Scheduler{sched: sched, logger: logger}, nil
}

// Stop waits for a running refresh and stops the schedule.
func (s *Scheduler) Stop() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}
