package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"ciwarden/pkg/logging"
)

// ErrExecutorShutdown finishes tasks submitted after Shutdown, or still queued
// when it was called.
var ErrExecutorShutdown = errors.New("task executor is shut down")

// Executor runs tasks on a bounded number of workers.
type Executor struct {
	mu sync.Mutex

	workers int
	sem     *semaphore.Weighted

	// queue holds admitted tasks in FIFO order
	queue []*Task
	cond  *sync.Cond

	// outstanding counts submitted tasks that have not finished; idle is
	// closed whenever it drops to zero
	outstanding int
	idle        chan struct{}

	// running counts tasks currently executing
	running sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	started      bool
	shuttingDown bool
	dispatcher   sync.WaitGroup
}

// NewExecutor creates an executor running at most workers tasks at a time.
// workers below 1 is treated as 1.
func NewExecutor(workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	e := &Executor{
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		queue:   make([]*Task, 0),
		idle:    make(chan struct{}),
	}
	close(e.idle)
	e.cond = sync.NewCond(&e.mu)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Workers returns the configured concurrency.
func (e *Executor) Workers() int {
	return e.workers
}

// Start begins dispatching. Tasks inherit values from ctx, and are cancelled
// when ctx is cancelled.
func (e *Executor) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	base := e.ctx
	go func() {
		select {
		case <-ctx.Done():
			e.cancel()
		case <-base.Done():
		}
	}()

	e.dispatcher.Add(1)
	go e.dispatch()
	logging.Debug("Executor", "Started with %d workers", e.workers)
}

// Submit admits fn under name and returns its handle.
func (e *Executor) Submit(name string, fn Func) *Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := newTask(e.ctx, name, fn)
	if e.shuttingDown {
		t.finish(ErrExecutorShutdown)
		return t
	}

	if e.outstanding == 0 {
		e.idle = make(chan struct{})
	}
	e.outstanding++
	e.queue = append(e.queue, t)
	e.cond.Signal()
	logging.Debug("Executor", "Submitted task %s (%s)", t.Name, t.ID)
	return t
}

// Len returns the number of tasks waiting for a worker.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Wait blocks until every task submitted so far has finished, or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops admission, finishes queued tasks with ErrExecutorShutdown and
// waits for running tasks until ctx is done, after which their contexts are
// cancelled.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return nil
	}
	e.shuttingDown = true
	dropped := e.queue
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, t := range dropped {
		t.finish(ErrExecutorShutdown)
		e.taskDone()
	}

	finished := make(chan struct{})
	go func() {
		e.dispatcher.Wait()
		e.running.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
		logging.Warn("Executor", "Shutdown timed out, cancelling running tasks")
	}
	e.cancel()
	return err
}

func (e *Executor) dispatch() {
	defer e.dispatcher.Done()

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.shuttingDown {
			e.cond.Wait()
		}
		if e.shuttingDown {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.running.Add(1)
		e.mu.Unlock()

		// Wait for a free worker while keeping FIFO admission.
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			t.finish(err)
			e.running.Done()
			e.taskDone()
			continue
		}

		go func() {
			defer e.sem.Release(1)
			e.run(t)
		}()
	}
}

// taskDone records that a submitted task has finished.
func (e *Executor) taskDone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outstanding--
	if e.outstanding == 0 {
		close(e.idle)
	}
}

func (e *Executor) run(t *Task) {
	defer e.taskDone()
	defer e.running.Done()

	if err := t.ctx.Err(); err != nil {
		t.finish(err)
		return
	}

	t.markRunning()
	logging.Debug("Executor", "Running task %s (%s)", t.Name, t.ID)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %s panicked: %v", t.Name, r)
				logging.Error("Executor", err, "Recovered panic\n%s", debug.Stack())
			}
		}()
		err = t.fn(t.ctx)
	}()

	t.finish(err)
	if err != nil {
		logging.Warn("Executor", "Task %s (%s) failed: %v", t.Name, t.ID, err)
	} else {
		logging.Debug("Executor", "Task %s (%s) finished in %v", t.Name, t.ID, t.Duration())
	}
}
