// Package scheduler runs the periodic service desk tasks: the JIRA import
// followed by the automation pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/itsm-garden/internal/pkg/ctxlog"
	"github.com/robfig/cron/v3"
)

// Task is one step of a scheduled run.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its tasks in order on a cron schedule. A run that is
// still going when the next one is due causes that one to be skipped.
type Scheduler struct {
	cron  *cron.Cron
	spec  string
	tasks []Task

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// New creates a scheduler for a standard cron spec or descriptor such as
// "@every 15m".
func New(spec string, tasks ...Task) (*Scheduler, error) {
	if len(tasks) == 0 {
		return nil, errors.New("scheduler: no tasks")
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		spec:   spec,
		tasks:  tasks,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running on schedule. It does not block. A stopped
// scheduler does not start again.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.ctx.Err() != nil {
		return
	}
	s.cron.Start()
	s.running = true

	slog.Info("scheduler started", "schedule", s.spec, "tasks", len(s.tasks))
}

// Stop cancels the current run and waits for it to return or for ctx to
// expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()

	select {
	case <-s.cron.Stop().Done():
		slog.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunOnce runs every task in order. A failed task is logged and does not
// stop the ones after it. The joined task errors are returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, ctx.Err()))
			break
		}

		taskCtx := ctxlog.With(ctx, "task", task.Name)
		logger := ctxlog.FromContext(taskCtx)

		start := time.Now()
		err := task.Run(taskCtx)
		duration := time.Since(start)

		if err != nil {
			recordTask(task.Name, "error", duration)
			logger.Error("scheduled task failed", "duration", duration, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
			continue
		}
		recordTask(task.Name, "success", duration)
		logger.Debug("scheduled task finished", "duration", duration)
	}
	return errors.Join(errs...)
}
