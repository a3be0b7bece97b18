package queue

import (
	"context"
	"encoding/json"
)

type (
	// Handler processes tasks with a matching name.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	TaskHandlerFunc[T any]  func(ctx context.Context, payload T) error
	PeriodicTaskHandlerFunc func(ctx context.Context) error
)

// NewTaskHandler handles tasks enqueued with a payload of type T.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var payload T
	return &oneTimeTaskHandler[T]{name: qualifiedStructName(payload), fn: fn}
}

// NewPeriodicTaskHandler handles the scheduler task registered as name.
func NewPeriodicTaskHandler(name string, fn PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{name: name, fn: fn}
}

type oneTimeTaskHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h *oneTimeTaskHandler[T]) Name() string { return h.name }

func (h *oneTimeTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.fn(ctx, t)
}

type periodicTaskHandler struct {
	name string
	fn   PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string { return h.name }

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage) error {
	return h.fn(ctx)
}
