package batch

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Service owns the three batch jobs and guarantees they never overlap:
// a trigger arriving while any batch job is active is skipped, not
// queued.
type Service struct {
	hourly *HourlyJob
	daily  *DailyJob
	peak   *PeakJob

	busy     atomic.Bool
	runs     atomic.Int64
	skips    atomic.Int64
	failures atomic.Int64
}

// NewService creates a new batch service.
func NewService(hourly *HourlyJob, daily *DailyJob, peak *PeakJob) *Service {
	return &Service{
		hourly: hourly,
		daily:  daily,
		peak:   peak,
	}
}

// RunHourly rebuilds the previous completed hour.
func (s *Service) RunHourly(ctx context.Context) {
	s.run(ctx, "hourly", func(ctx context.Context) error {
		return s.hourly.RunPrevious(ctx, time.Now())
	})
}

// RunDaily rolls up the previous calendar day.
func (s *Service) RunDaily(ctx context.Context) {
	s.run(ctx, "daily", func(ctx context.Context) error {
		return s.daily.RunPrevious(ctx, time.Now())
	})
}

// RunPeak analyzes the previous day's peak hours.
func (s *Service) RunPeak(ctx context.Context) {
	s.run(ctx, "peak", func(ctx context.Context) error {
		return s.peak.RunPrevious(ctx, time.Now())
	})
}

// CatchUp reprocesses the previous hour and day once at startup, so a
// restart never leaves a completed window waiting for its next trigger.
// Every job is idempotent over its window.
func (s *Service) CatchUp(ctx context.Context) {
	s.run(ctx, "catch-up", func(ctx context.Context) error {
		now := time.Now()
		if err := s.hourly.RunPrevious(ctx, now); err != nil {
			return err
		}
		if err := s.daily.RunPrevious(ctx, now); err != nil {
			return err
		}
		return s.peak.RunPrevious(ctx, now)
	})
}

func (s *Service) run(ctx context.Context, name string, job func(context.Context) error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skips.Add(1)
		log.Printf("Skipping %s job: another batch job is still active", name)
		return
	}
	defer s.busy.Store(false)

	s.runs.Add(1)
	if err := job(ctx); err != nil {
		s.failures.Add(1)
		log.Printf("Batch %s job failed: %v", name, err)
	}
}

// Stats is a snapshot of the batch service counters.
type Stats struct {
	Runs     int64
	Skips    int64
	Failures int64
}

// Stats returns a snapshot of the batch service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Runs:     s.runs.Load(),
		Skips:    s.skips.Load(),
		Failures: s.failures.Load(),
	}
}
