package work

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type funcTask[T any] struct {
	id      string
	fn      func(ctx context.Context) (T, error)
	onError func(error)
	timeout time.Duration
}

type TaskOption[T any] func(*funcTask[T])

func WithID[T any](id string) TaskOption[T] {
	return func(t *funcTask[T]) { t.id = id }
}

// WithErrorHandler is called with the final error of a failed run, after
// timeouts have been mapped to ErrTaskTimeout.
func WithErrorHandler[T any](handler func(error)) TaskOption[T] {
	return func(t *funcTask[T]) { t.onError = handler }
}

func WithTimeout[T any](timeout time.Duration) TaskOption[T] {
	return func(t *funcTask[T]) { t.timeout = timeout }
}

// NewTask wraps fn in an Executor. The ID defaults to a UUIDv7.
func NewTask[T any](fn func(ctx context.Context) (T, error), options ...TaskOption[T]) (Executor[T], error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	t := &funcTask[T]{id: id.String(), fn: fn}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

func (t *funcTask[T]) ExecutorID() string { return t.id }

func (t *funcTask[T]) Execute(ctx context.Context) (T, error) { return t.fn(ctx) }

func (t *funcTask[T]) OnError(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}

func (t *funcTask[T]) Timeout() time.Duration { return t.timeout }
