// Package reconciler converges the builds ciwarden has scheduled with what the
// hosting provider reports.
//
// # Passes
//
// Two passes are provided. Both are idempotent against the build registry
// and may run concurrently with each other:
//
//   - RestartPendingBuilds reads the shas the build status store still holds
//     as pending or running, matches each one to an open change request on a
//     commit-trigger branch and schedules a build for it.
//   - ScheduleMissingStatusBuilds lists the open change requests on the
//     commit-trigger branches and schedules a build for every head sha that
//     has no commit status at all.
//
// # Admission
//
// A build is admitted in four steps: check the registry, construct the
// execution through the Sink, set it up, then Register it. Register is an
// atomic check-and-insert, so when two passes race on the same (project, sha)
// exactly one execution is submitted and the other is discarded.
//
// # Errors
//
// A failed provider query aborts the current project only; the pass moves on
// to the next one. Missing or ambiguous change requests skip the sha. None of
// these fail the pass; they are logged, counted in Metrics and collected in
// the Result.
//
// Example usage:
//
//	engine := reconciler.NewEngine(reconciler.Config{
//		Registry: reg,
//		Sink:     runner,
//		Queue:    queue,
//		Store:    store,
//	})
//	result := engine.ScheduleMissingStatusBuilds(ctx, projects, client)
//	for _, task := range result.Tasks {
//		if task != nil {
//			_ = task.Wait(ctx)
//		}
//	}
package reconciler
