package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Job on a cron schedule until its context is cancelled.
type Scheduler struct {
	job      *Job
	schedule string
	location *time.Location
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewScheduler(job *Job, schedule, timezone string, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("report: job is required")
	}
	if schedule == "" {
		return nil, fmt.Errorf("report: cron schedule is required")
	}
	location := time.UTC
	if timezone != "" {
		tz, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("report: invalid timezone: %w", err)
		}
		location = tz
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("report: invalid schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{job: job, schedule: schedule, location: location, logger: logger}, nil
}

// Start registers the job and returns immediately. Runs never overlap; a tick that fires
// while the previous report is still sending is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := s.cron.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		_ = s.job.Run(runCtx)
	})
	if err != nil {
		return fmt.Errorf("report: schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info("recipient report scheduled", "schedule", s.schedule, "timezone", s.location.String())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop waits for a running report to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
