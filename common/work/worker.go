package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidPoolSize = errors.New("pool size must be positive")
	ErrPoolClosed      = errors.New("worker pool is closed")
	ErrTaskTimeout     = errors.New("task execution timeout")
)

const defaultTaskTimeout = 30 * time.Second

// TaskResult is the settled outcome of one Executor.
type TaskResult[T any] struct {
	TaskID   string
	Result   T
	Error    error
	Duration time.Duration
}

func (tr *TaskResult[T]) IsSuccess() bool {
	return tr.Error == nil
}

// Executor is a unit of work the pool can run.
type Executor[T any] interface {
	ExecutorID() string
	Execute(ctx context.Context) (T, error)
	OnError(error)
	// Timeout overrides the pool timeout when positive.
	Timeout() time.Duration
}

// Pool runs Executors on a fixed set of goroutines. Every submitted task
// produces exactly one TaskResult; callers must drain Results until it is
// closed.
type Pool[T any] struct {
	size    int
	timeout time.Duration
	tasks   chan Executor[T]
	results chan TaskResult[T]
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewPool creates a pool of size workers. buffer sizes both the queue and the
// result channel.
func NewPool[T any](size, buffer int, timeout time.Duration) (*Pool[T], error) {
	if size <= 0 {
		return nil, ErrInvalidPoolSize
	}
	if buffer < 0 {
		buffer = 0
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Pool[T]{
		size:    size,
		timeout: timeout,
		tasks:   make(chan Executor[T], buffer),
		results: make(chan TaskResult[T], buffer),
	}, nil
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool[T]) Start(ctx context.Context, poolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for task := range p.tasks {
				p.send(ctx, p.run(ctx, task, poolID, workerID))
			}
		}(i)
	}
	log.Debug().Str("workerPoolID", poolID).Int("numWorkers", p.size).Msg("Worker pool started")
}

// Submit queues task, blocking while the queue is full.
func (p *Pool[T]) Submit(ctx context.Context, task Executor[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) Results() <-chan TaskResult[T] {
	return p.results
}

// Close stops accepting tasks, lets the workers finish what is queued and
// closes Results.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

func (p *Pool[T]) run(ctx context.Context, task Executor[T], poolID string, workerID int) TaskResult[T] {
	timeout := p.timeout
	if t := task.Timeout(); t > 0 {
		timeout = t
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := task.Execute(taskCtx)
	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = ErrTaskTimeout
	}
	if err != nil {
		task.OnError(err)
	}

	res := TaskResult[T]{
		TaskID:   task.ExecutorID(),
		Result:   result,
		Error:    err,
		Duration: time.Since(start),
	}
	log.Debug().
		Str("workerPoolID", poolID).
		Int("workerID", workerID).
		Str("taskID", res.TaskID).
		Dur("duration", res.Duration).
		Bool("success", err == nil).
		Msg("Task completed")
	return res
}

// send delivers res unless ctx is gone, in which case nobody is listening.
func (p *Pool[T]) send(ctx context.Context, res TaskResult[T]) {
	select {
	case p.results <- res:
	case <-ctx.Done():
		log.Debug().Str("taskID", res.TaskID).Msg("Dropping result of cancelled pool")
	}
}

// RunAll executes every task concurrently and waits until each one has
// settled. Results come back in completion order, failures included.
func RunAll[T any](ctx context.Context, poolID string, taskTimeout time.Duration, tasks []Executor[T]) ([]TaskResult[T], error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	pool, err := NewPool[T](len(tasks), len(tasks), taskTimeout)
	if err != nil {
		return nil, err
	}
	pool.Start(ctx, poolID)
	defer pool.Close()

	for _, task := range tasks {
		if err := pool.Submit(ctx, task); err != nil {
			return nil, err
		}
	}

	results := make([]TaskResult[T], 0, len(tasks))
	for len(results) < len(tasks) {
		select {
		case res := <-pool.Results():
			results = append(results, res)
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}
