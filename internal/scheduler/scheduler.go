package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. The context passed in is cancelled
// when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler owns every periodic and one-shot task of a process:
// interval tasks, calendar tasks in the configured local zone, and
// one-shots. Stopping it cancels all of them. A task whose previous
// run is still active skips the trigger and counts the skip.
type Scheduler struct {
	loc  *time.Location
	cron *cron.Cron

	mu      sync.Mutex
	tasks   map[string]*task
	oneShot oneShotHeap
	pending map[string]*oneShotTask
	wakeup  chan struct{}
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	name    string
	running atomic.Bool
	runs    atomic.Int64
	skips   atomic.Int64
}

// TaskStats counts completed and skipped runs of one task.
type TaskStats struct {
	Runs  int64
	Skips int64
}

// Stats is a snapshot of the scheduler's tasks.
type Stats struct {
	PendingOneShots int
	Tasks           map[string]TaskStats
}

// New creates a scheduler whose calendar tasks fire in loc.
func New(loc *time.Location) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		loc:     loc,
		cron:    cron.New(cron.WithLocation(loc)),
		tasks:   make(map[string]*task),
		pending: make(map[string]*oneShotTask),
		wakeup:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) register(name string) (*task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if _, exists := s.tasks[name]; exists {
		return nil, fmt.Errorf("task %q already registered", name)
	}
	t := &task{name: name}
	s.tasks[name] = t
	return t, nil
}

// runTask executes job unless the task is still busy from its previous
// trigger, in which case the trigger is skipped, not queued.
func (s *Scheduler) runTask(t *task, job Job) {
	if !t.running.CompareAndSwap(false, true) {
		t.skips.Add(1)
		log.Printf("Skipping task %s: previous run still active", t.name)
		return
	}
	defer t.running.Store(false)
	t.runs.Add(1)
	job(s.ctx)
}

// Every registers a task firing at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v for task %q", interval, name)
	}
	t, err := s.register(name)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.runTask(t, job)
				}()
			}
		}
	}()
	return nil
}

// EveryHourAt registers a task firing every hour at the given minute
// of the scheduler's local zone.
func (s *Scheduler) EveryHourAt(name string, minute int, job Job) error {
	if minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute %d for task %q", minute, name)
	}
	return s.addCron(name, fmt.Sprintf("%d * * * *", minute), job)
}

// DailyAt registers a task firing once a day at the given local time.
func (s *Scheduler) DailyAt(name string, hour, minute int, job Job) error {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid time %02d:%02d for task %q", hour, minute, name)
	}
	return s.addCron(name, fmt.Sprintf("%d %d * * *", minute, hour), job)
}

func (s *Scheduler) addCron(name, spec string, job Job) error {
	t, err := s.register(name)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runTask(t, job) }); err != nil {
		return fmt.Errorf("failed to register task %q: %w", name, err)
	}
	return nil
}

// Start begins firing tasks. One-shots registered before Start stay
// queued until it is called.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.wg.Add(1)
	go s.runOneShots()
}

// Stop cancels every task and waits up to grace for in-flight runs to
// finish. It reports whether everything stopped within the grace
// period.
func (s *Scheduler) Stop(grace time.Duration) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return true
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// Stats returns a snapshot of registered tasks and pending one-shots.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		PendingOneShots: len(s.pending),
		Tasks:           make(map[string]TaskStats, len(s.tasks)),
	}
	for name, t := range s.tasks {
		stats.Tasks[name] = TaskStats{
			Runs:  t.runs.Load(),
			Skips: t.skips.Load(),
		}
	}
	return stats
}

// ErrStopped is returned when registering on a stopped scheduler.
var ErrStopped = &SchedulerError{"scheduler is stopped"}

// SchedulerError represents a scheduler error
type SchedulerError struct {
	msg string
}

func (e *SchedulerError) Error() string {
	return e.msg
}
