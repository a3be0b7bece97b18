package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/redis"
)

// SchedulerRepository is the storage the Scheduler writes to.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
	// GetPendingTaskByName returns ErrTaskNotFound when none is pending.
	GetPendingTaskByName(ctx context.Context, name string) (*Task, error)
}

// Scheduler turns Schedules into periodic tasks for the Worker.
type Scheduler struct {
	repo       SchedulerRepository
	interval   time.Duration
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	tasks map[string]*scheduledTask
}

type scheduledTask struct {
	name            string
	schedule        Schedule
	queue           string
	lastScheduledAt *time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerClock overrides time.Now.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler that checks every cfg.SchedulerInterval.
func NewScheduler(repo SchedulerRepository, cfg Config, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if cfg.SchedulerInterval <= 0 {
		cfg.SchedulerInterval = DefaultConfig().SchedulerInterval
	}

	s := &Scheduler{
		repo:       repo,
		interval:   cfg.SchedulerInterval,
		maxRetries: cfg.MaxRetries,
		logger:     slog.Default(),
		now:        time.Now,
		tasks:      make(map[string]*scheduledTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("queue.scheduler"))
	return s, nil
}

// AddTask registers a periodic task. The Worker needs a handler created with
// NewPeriodicTaskHandler under the same name.
func (s *Scheduler) AddTask(name string, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = &scheduledTask{name: name, schedule: schedule, queue: DefaultQueueName}

	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()),
	)
	return nil
}

// Run checks for due tasks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.tasks)
	s.mu.Unlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.CheckTasks(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CheckTasks(ctx)
		}
	}
}

// CheckTasks creates every task that is due.
func (s *Scheduler) CheckTasks(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	now := s.now()
	for _, t := range tasks {
		err := s.scheduleIfDue(ctx, t, now)
		switch {
		case err == nil:
		case errors.Is(err, redis.ErrUnavailable):
			s.logger.LogAttrs(ctx, slog.LevelDebug, "queue storage unavailable, periodic task skipped",
				slog.String("task_name", t.name),
			)
		default:
			s.logger.LogAttrs(ctx, slog.LevelError, "failed to schedule task",
				slog.String("task_name", t.name),
				logger.Error(err),
			)
		}
	}
}

func (s *Scheduler) scheduleIfDue(ctx context.Context, t *scheduledTask, now time.Time) error {
	s.mu.Lock()
	last := t.lastScheduledAt
	s.mu.Unlock()

	var next time.Time
	if last == nil {
		next = t.schedule.Next(now)
	} else {
		next = t.schedule.Next(*last)
		if next.After(now) {
			return nil
		}
		// Skip runs missed while the process was down.
		for !t.schedule.Next(next).After(now) {
			next = t.schedule.Next(next)
		}
	}

	existing, err := s.repo.GetPendingTaskByName(ctx, t.name)
	switch {
	case err == nil && existing != nil:
		s.setLast(t, existing.ScheduledAt)
		return nil
	case err != nil && !errors.Is(err, ErrTaskNotFound):
		return err
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       t.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    t.name,
		Status:      TaskStatusPending,
		MaxRetries:  s.maxRetries,
		ScheduledAt: next,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to create periodic task: %w", err)
	}
	s.setLast(t, next)

	s.logger.LogAttrs(ctx, slog.LevelInfo, "scheduled periodic task",
		slog.String("task_name", t.name),
		slog.Time("scheduled_for", next),
	)
	return nil
}

func (s *Scheduler) setLast(t *scheduledTask, at time.Time) {
	s.mu.Lock()
	t.lastScheduledAt = &at
	s.mu.Unlock()
}

// Tasks returns the registered task names.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}
