// Package periodic runs process-wide fixed-interval tasks such as button
// sampling and battery reporting.
package periodic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/pendant/internal/groutine"
)

// Task is a named function run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// Immediate runs the task once at start instead of waiting one interval.
	Immediate bool
	Run       func(ctx context.Context)
}

// Scheduler starts its tasks once and keeps them running until the
// context given to New is cancelled. Start is idempotent; there is no
// per-task stop.
type Scheduler struct {
	ctx context.Context

	mu      sync.Mutex
	tasks   []Task
	started bool
	wg      sync.WaitGroup
}

// New returns a Scheduler whose tasks live as long as ctx.
func New(ctx context.Context, tasks ...Task) *Scheduler {
	return &Scheduler{ctx: ctx, tasks: tasks}
}

// Add registers a task. Tasks added after Start begin immediately.
func (s *Scheduler) Add(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	if s.started {
		s.launch(t)
	}
}

// Start launches every registered task. Calls after the first are no-ops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, t := range s.tasks {
		s.launch(t)
	}
	slog.Debug("[PERIODIC] Started", "tasks", len(s.tasks))
}

// Started reports whether Start has been called.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Wait blocks until every launched task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) launch(t Task) {
	if t.Interval <= 0 || t.Run == nil {
		slog.Warn("[PERIODIC] Skipping invalid task", "task", t.Name, "interval", t.Interval)
		return
	}
	s.wg.Add(1)
	groutine.Go(s.ctx, t.Name, func(ctx context.Context) {
		defer s.wg.Done()
		if t.Immediate {
			t.Run(ctx)
		}
		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Run(ctx)
			}
		}
	})
}
