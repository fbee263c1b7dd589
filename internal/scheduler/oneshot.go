package scheduler

import (
	"container/heap"
	"time"
)

// oneShotTask is a task scheduled for a single future execution.
type oneShotTask struct {
	name  string
	at    time.Time
	task  *task
	job   Job
	index int // index in the heap (for heap.Interface)
}

// oneShotHeap is a min-heap of one-shots ordered by execution time.
type oneShotHeap []*oneShotTask

func (h oneShotHeap) Len() int { return len(h) }

func (h oneShotHeap) Less(i, j int) bool {
	return h[i].at.Before(h[j].at)
}

func (h oneShotHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *oneShotHeap) Push(x interface{}) {
	n := len(*h)
	t := x.(*oneShotTask)
	t.index = n
	*h = append(*h, t)
}

func (h *oneShotHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil  // avoid memory leak
	t.index = -1    // for safety
	*h = old[0 : n-1]
	return t
}

// RunOnceAt schedules job to run once at the given time. Scheduling
// the same name again moves the existing one-shot.
func (s *Scheduler) RunOnceAt(name string, at time.Time, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	if existing, ok := s.pending[name]; ok {
		existing.at = at
		existing.job = job
		heap.Fix(&s.oneShot, existing.index)
	} else {
		t := s.tasks[name]
		if t == nil {
			t = &task{name: name}
			s.tasks[name] = t
		}
		one := &oneShotTask{name: name, at: at, task: t, job: job}
		heap.Push(&s.oneShot, one)
		s.pending[name] = one
	}

	// Wake the loop in case this became the earliest task.
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
	return nil
}

// Cancel removes a pending one-shot, reporting whether it existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	one, ok := s.pending[name]
	if !ok {
		return false
	}
	heap.Remove(&s.oneShot, one.index)
	delete(s.pending, name)
	return true
}

// runOneShots pops tasks as they come due, waiting on the earliest
// deadline or a wakeup when an earlier task is scheduled.
func (s *Scheduler) runOneShots() {
	defer s.wg.Done()

	for {
		s.mu.Lock()

		var wait time.Duration
		if s.oneShot.Len() == 0 {
			// No tasks, wait for a wakeup.
			wait = 24 * time.Hour
		} else {
			next := s.oneShot[0]
			wait = time.Until(next.at)

			if wait <= 0 {
				one := heap.Pop(&s.oneShot).(*oneShotTask)
				delete(s.pending, one.name)
				s.mu.Unlock()

				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.runTask(one.task, one.job)
				}()
				continue
			}
		}

		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			// Time to check for due tasks.
		case <-s.wakeup:
			// An earlier task was scheduled.
			timer.Stop()
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}
}
