package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/atmostream/internal/metrics"
)

// Refresher recomputes the nowcast of one model.
type Refresher interface {
	Tracked() []string
	RefreshNowcast(ctx context.Context, model string) error
}

// Scheduler periodically refreshes the nowcast of every tracked model.
type Scheduler struct {
	log       *slog.Logger
	scheduler *gocron.Scheduler
	service   Refresher
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler.
func New(log *slog.Logger, interval time.Duration, service Refresher) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		log:       log,
		scheduler: s,
		service:   service,
		interval:  interval,
		timeout:   2 * time.Minute,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.service.Tracked()) == 0 {
		s.log.Info("scheduler: no models tracked; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce refreshes every tracked model concurrently and waits for all of
// them.
func (s *Scheduler) RunOnce() {
	s.log.Debug("scheduler: running nowcast refresh job")

	var wg sync.WaitGroup
	for _, model := range s.service.Tracked() {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			if err := s.service.RefreshNowcast(ctx, model); err != nil {
				metrics.NowcastRefreshTotal.WithLabelValues(model, "error").Inc()
				s.log.Warn("scheduler: nowcast refresh failed", "model", model, "error", err)
				return
			}
			metrics.NowcastRefreshTotal.WithLabelValues(model, "ok").Inc()
		}()
	}
	wg.Wait()
	s.log.Debug("scheduler: completed nowcast refresh job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
