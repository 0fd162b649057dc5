// Package tasks provides the asynchronous task executor reconciliation passes,
// pollers' on-demand work and build hand-offs are submitted to.
//
// Admission is FIFO: tasks start in the order they were submitted. Once
// started, tasks run concurrently on up to Workers goroutines and finish in no
// particular order. Each submission returns a *Task exposing a completion
// signal so that callers (and tests) can await a specific piece of work:
//
//	exec := tasks.NewExecutor(4)
//	exec.Start(ctx)
//
//	t := exec.Submit("restart-pending-builds", func(ctx context.Context) error {
//	    return engine.RestartPendingBuilds(ctx, projects, client)
//	})
//	if err := t.Wait(ctx); err != nil {
//	    ...
//	}
package tasks
