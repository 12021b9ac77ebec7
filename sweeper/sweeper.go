// Package sweeper schedules periodic removal of expired magic links.
package sweeper

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-magiclink/pkg/types"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs cleanup once an hour.
const DefaultSchedule = "@hourly"

// Cleaner deletes expired links and reports how many were removed.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Sweeper runs Cleaner on a cron schedule.
type Sweeper struct {
	cleaner  Cleaner
	schedule string
	logger   types.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New builds a sweeper. An empty schedule falls back to DefaultSchedule.
func New(cleaner Cleaner, schedule string, logger types.Logger) (*Sweeper, error) {
	if cleaner == nil {
		return nil, errors.New("sweeper: cleaner required")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Sweeper{cleaner: cleaner, schedule: schedule, logger: logger}, nil
}

// Start schedules the job. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(runCtx) }); err != nil {
		cancel()
		return err
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("sweeper: started", "schedule", s.schedule)
	return nil
}

// Stop cancels the schedule and waits for a running job to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("sweeper: stopped")
}

// RunOnce performs a single cleanup pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	count, err := s.cleaner.Cleanup(ctx)
	if err != nil {
		s.logger.Error("sweeper: cleanup failed", err)
		return 0, err
	}
	if count > 0 {
		s.logger.Info("sweeper: expired links removed", "count", count)
	}
	return count, nil
}
