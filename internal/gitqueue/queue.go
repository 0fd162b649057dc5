package gitqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"ciwarden/pkg/logging"
)

// ErrQueueShutdown is returned for operations submitted after Shutdown or
// still pending when the queue stopped.
var ErrQueueShutdown = errors.New("git mutation queue is shut down")

// Operation mutates a source checkout.
type Operation func(ctx context.Context) error

// pendingOp is an operation waiting for its turn.
type pendingOp struct {
	name   string
	ctx    context.Context
	fn     Operation
	result chan error
}

// Queue runs operations one at a time in FIFO order.
type Queue struct {
	mu sync.Mutex

	// pending holds operations in submission order
	pending []*pendingOp

	// cond wakes the worker on submit and shutdown
	cond *sync.Cond

	shuttingDown bool
	started      bool

	// running is the name of the operation currently executing, if any
	running string

	// processed counts finished operations
	processed int64

	wg sync.WaitGroup
}

// New creates a stopped queue. Operations may be submitted before Start; they
// run once the worker starts.
func New() *Queue {
	q := &Queue{
		pending: make([]*pendingOp, 0),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the single worker. Calling Start more than once has no effect.
// The worker stops when ctx is cancelled or Shutdown is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.Shutdown()
	}()

	q.wg.Add(1)
	go q.worker()
	logging.Debug("GitQueue", "Worker started")
}

// Submit enqueues fn and returns a channel that receives its result exactly
// once. ctx is passed to fn; if ctx is done before fn's turn comes, fn is
// skipped and ctx.Err() is delivered instead.
func (q *Queue) Submit(ctx context.Context, name string, fn Operation) <-chan error {
	result := make(chan error, 1)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		result <- ErrQueueShutdown
		return result
	}

	q.pending = append(q.pending, &pendingOp{
		name:   name,
		ctx:    ctx,
		fn:     fn,
		result: result,
	})
	q.cond.Signal()

	logging.Debug("GitQueue", "Queued %s (depth %d)", name, len(q.pending))
	return result
}

// Do submits fn and waits for it to finish. If ctx is cancelled while waiting
// the operation still runs to completion (or is skipped if it has not started)
// but Do returns ctx.Err() immediately.
func (q *Queue) Do(ctx context.Context, name string, fn Operation) error {
	select {
	case err := <-q.Submit(ctx, name, fn):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of operations waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Processed returns the number of operations that have finished.
func (q *Queue) Processed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

// Running returns the name of the executing operation, or "" when idle.
func (q *Queue) Running() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Shutdown stops accepting operations, fails the ones still pending with
// ErrQueueShutdown and waits for the executing one to return.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.shuttingDown {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.shuttingDown = true
	dropped := q.pending
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, op := range dropped {
		op.result <- ErrQueueShutdown
	}
	if len(dropped) > 0 {
		logging.Warn("GitQueue", "Dropped %d pending operations on shutdown", len(dropped))
	}

	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.shuttingDown {
			q.cond.Wait()
		}
		if q.shuttingDown {
			q.mu.Unlock()
			logging.Debug("GitQueue", "Worker shutting down")
			return
		}

		op := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running = op.name
		q.mu.Unlock()

		err := q.run(op)

		q.mu.Lock()
		q.running = ""
		q.processed++
		q.mu.Unlock()

		op.result <- err
	}
}

// run executes a single operation, converting a panic into an error so that it
// cannot take the worker down.
func (q *Queue) run(op *pendingOp) (err error) {
	if ctxErr := op.ctx.Err(); ctxErr != nil {
		logging.Debug("GitQueue", "Skipping %s: %v", op.name, ctxErr)
		return ctxErr
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation %s panicked: %v", op.name, r)
			logging.Error("GitQueue", err, "Recovered panic\n%s", debug.Stack())
		}
	}()

	start := time.Now()
	err = op.fn(op.ctx)
	if err != nil {
		logging.Warn("GitQueue", "Operation %s failed after %v: %v", op.name, time.Since(start), err)
		return err
	}
	logging.Debug("GitQueue", "Operation %s finished in %v", op.name, time.Since(start))
	return nil
}
