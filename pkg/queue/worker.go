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
)

// WorkerRepository is the storage a Worker pulls from.
type WorkerRepository interface {
	// ClaimTask locks the next due task or returns ErrNoTaskToClaim.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, id uuid.UUID) error
	// FailTask records a failed attempt and returns the updated task.
	FailTask(ctx context.Context, id uuid.UUID, errMsg string) (*Task, error)
	MoveToDLQ(ctx context.Context, id uuid.UUID) error
}

// Worker claims due tasks and runs the handler registered for each.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex

	pollInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithQueues sets the queues the worker pulls from, in priority order.
func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a worker configured from cfg.
func NewWorker(repo WorkerRepository, cfg Config, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}

	w := &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		workerID:     uuid.New(),
		sem:          make(chan struct{}, cfg.MaxConcurrentTasks),
		pollInterval: cfg.PollInterval,
		lockTimeout:  cfg.LockTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("queue.worker"), slog.String("worker_id", w.workerID.String()))

	return w, nil
}

// RegisterHandlers registers handlers by name. A later handler replaces an
// earlier one with the same name.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)),
	)
	return nil
}

// Stop stops polling and waits for running tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return ErrWorkerNotStarted
	}
	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Run returns a function for errgroup that runs the worker until ctx ends.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case w.sem <- struct{}{}:
		default:
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.drain(ctx)
		}()
	}
}

// drain processes tasks until none is due or ctx ends.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := w.pullAndProcess(ctx)
		if err != nil && !errors.Is(err, ErrHandlerNotFound) {
			w.logger.LogAttrs(ctx, slog.LevelError, "failed to process task", logger.Error(err))
		}
		if !claimed {
			return
		}
	}
}

// pullAndProcess claims one task and runs it. It reports whether a task
// was claimed.
func (w *Worker) pullAndProcess(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	// Claimed tasks run to completion on shutdown.
	return true, w.processTask(context.WithoutCancel(ctx), task)
}

// ProcessTask runs a single task now. Exposed for tests and on-demand use.
func (w *Worker) ProcessTask(ctx context.Context, task *Task) error {
	return w.processTask(ctx, task)
}

func (w *Worker) processTask(ctx context.Context, task *Task) (retErr error) {
	start := time.Now()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(ctx, task)
	}

	hctx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			retErr = w.handleTaskFailure(ctx, task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	if err := handler.Handle(hctx, task.Payload); err != nil {
		return w.handleTaskFailure(ctx, task, err, time.Since(start))
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.logger.LogAttrs(ctx, slog.LevelDebug, "task completed",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Duration(time.Since(start)),
	)
	return nil
}

// handleMissingHandler dead-letters the task at once; retrying cannot help
// until a handler is deployed.
func (w *Worker) handleMissingHandler(ctx context.Context, task *Task) error {
	w.logger.LogAttrs(ctx, slog.LevelError, "no handler registered for task",
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
	)

	if _, err := w.repo.FailTask(ctx, task.ID, ErrHandlerNotFound.Error()+": "+task.TaskName); err != nil {
		return fmt.Errorf("failed to mark task %s as failed: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) handleTaskFailure(ctx context.Context, task *Task, execErr error, d time.Duration) error {
	updated, err := w.repo.FailTask(ctx, task.ID, execErr.Error())
	if err != nil {
		return fmt.Errorf("failed to record failure of task %s: %w", task.ID, err)
	}

	attrs := []slog.Attr{
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		logger.Attempt(updated.RetryCount),
		slog.Int("max_retries", updated.MaxRetries),
		logger.Duration(d),
		logger.Error(execErr),
	}

	if !updated.Exhausted() {
		w.logger.LogAttrs(ctx, slog.LevelWarn, "task failed, will retry",
			append(attrs, slog.Time("retry_at", updated.ScheduledAt))...)
		return nil
	}

	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ after max retries: %w", task.ID, err)
	}
	w.logger.LogAttrs(ctx, slog.LevelError, "task moved to dead letter queue", attrs...)
	return nil
}
