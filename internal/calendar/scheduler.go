package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher refreshes calendar tokens that are about to expire.
type Refresher interface {
	RefreshExpiring(ctx context.Context) (int, error)
}

// Scheduler runs the periodic token refresh job.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	interval  time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
}

// NewScheduler creates a scheduler that refreshes tokens every interval.
// Intervals under a minute default to five minutes.
func NewScheduler(refresher Refresher, interval time.Duration) *Scheduler {
	if interval < time.Minute {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		refresher: refresher,
		interval:  interval,
	}
}

// Start schedules the refresh job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.refresh(ctx)
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.running = true
	s.cron.Start()

	slog.Info("calendar token scheduler started", "interval", s.interval.String())
	return nil
}

// Stop waits for a running job to finish and stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	<-done.Done()
	slog.Info("calendar token scheduler stopped")
}

// TriggerRefresh runs the refresh job immediately in the background.
func (s *Scheduler) TriggerRefresh(ctx context.Context) {
	go s.refresh(ctx)
}

// NextRun returns the next scheduled refresh, or nil when not started.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

func (s *Scheduler) refresh(ctx context.Context) {
	n, err := s.refresher.RefreshExpiring(ctx)
	if err != nil {
		slog.Error("calendar token refresh failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("refreshed calendar tokens", "count", n)
	}
}
