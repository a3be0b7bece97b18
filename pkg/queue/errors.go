package queue

import "errors"

var (
	ErrRepositoryNil  = errors.New("repository cannot be nil")
	ErrPayloadNil     = errors.New("payload cannot be nil")
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrNoTaskToClaim is returned by ClaimTask when nothing is due.
	ErrNoTaskToClaim = errors.New("no task to claim")
	ErrTaskNotFound  = errors.New("task not found")

	ErrHandlerNotFound        = errors.New("no handler registered for task type")
	ErrNoHandlers             = errors.New("no task handlers registered")
	ErrWorkerStarted          = errors.New("worker already started")
	ErrWorkerNotStarted       = errors.New("worker not started")
	ErrTaskAlreadyRegistered  = errors.New("task already registered")
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")
	ErrTimersClosed           = errors.New("timer list closed")
)
