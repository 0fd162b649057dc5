package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// State describes where a task is in its lifecycle.
type State string

const (
	StateQueued    State = "Queued"
	StateRunning   State = "Running"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
)

// Task is a handle on submitted work.
type Task struct {
	// ID is unique per submission.
	ID string

	// Name is the human readable label given at submission.
	Name string

	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	err       error
	submitted time.Time
	started   time.Time
	finished  time.Time
}

func newTask(parent context.Context, name string, fn Func) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		ID:        uuid.NewString(),
		Name:      name,
		fn:        fn,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateQueued,
		submitted: time.Now(),
	}
}

// Done is closed when the task has finished, successfully or not.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's error. It is nil until the task has finished.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Duration returns how long the task ran. It is zero until the task has
// finished.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished.IsZero() || t.started.IsZero() {
		return 0
	}
	return t.finished.Sub(t.started)
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the context passed to the task. A queued task that is
// cancelled finishes with context.Canceled without running.
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) markRunning() {
	t.mu.Lock()
	t.state = StateRunning
	t.started = time.Now()
	t.mu.Unlock()
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.finished = time.Now()
	if t.started.IsZero() {
		t.started = t.finished
	}
	if err != nil {
		t.state = StateFailed
	} else {
		t.state = StateSucceeded
	}
	t.mu.Unlock()

	t.cancel()
	close(t.done)
}
