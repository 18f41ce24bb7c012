package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the stale sweep once an hour.
const DefaultSweepSchedule = "@hourly"

// Sweeper runs CleanupStale on a cron schedule.
type Sweeper struct {
	box      *Box
	schedule string
	maxAge   time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	cron *rcron.Cron
}

// NewSweeper creates a sweeper. An empty schedule uses DefaultSweepSchedule;
// maxAge <= 0 uses the box's configured horizon.
func NewSweeper(box *Box, schedule string, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		box:      box,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger,
	}
}

// Start registers the sweep and starts the scheduler. The scheduler stops
// when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	c := rcron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("Sweeper: started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce performs one sweep and returns the number of memories deleted.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	cleaned, err := s.box.CleanupStale(ctx, s.maxAge)
	if err != nil {
		s.logger.Error("Sweeper: cleanup failed", "error", err)
		return 0
	}
	return cleaned
}

// Stop stops the scheduler and waits up to 5s for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("Sweeper: stop timeout waiting for running sweep")
	}
	s.logger.Info("Sweeper: stopped")
}

// ValidateSchedule reports whether spec parses as a cron schedule.
func ValidateSchedule(spec string) error {
	_, err := rcron.ParseStandard(spec)
	return err
}
