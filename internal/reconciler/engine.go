package reconciler

import (
	"context"
	"errors"
	"fmt"

	"ciwarden/internal/build"
	"ciwarden/internal/ci"
	"ciwarden/internal/gitqueue"
	"ciwarden/internal/registry"
	"ciwarden/internal/tasks"
	"ciwarden/pkg/logging"
)

// Pass names a reconciliation pass.
type Pass string

const (
	PassRestartPending Pass = "restart-pending"
	PassMissingStatus  Pass = "missing-status"
)

// Sink receives the build executions a pass admits.
type Sink interface {
	Construct(project ci.Project, sha string, client ci.CommitStatusSource, fork build.Fork, queue *gitqueue.Queue) *build.Execution
	Setup(e *build.Execution) error
	Submit(e *build.Execution) *tasks.Task
}

// Config wires an Engine.
type Config struct {
	Registry *registry.Registry
	Sink     Sink

	// Queue is handed to every constructed execution.
	Queue *gitqueue.Queue

	// Store supplies the shas RestartPendingBuilds retries.
	Store ci.BuildStatusStore

	// Supported reports whether a project's credential type has a provider
	// integration. Nil accepts every type.
	Supported func(ci.CredentialType) bool

	// Metrics may be nil.
	Metrics *Metrics
}

// Engine runs the reconciliation passes.
type Engine struct {
	registry  *registry.Registry
	sink      Sink
	queue     *gitqueue.Queue
	store     ci.BuildStatusStore
	supported func(ci.CredentialType) bool
	metrics   *Metrics
}

// NewEngine creates an Engine.
func NewEngine(config Config) *Engine {
	supported := config.Supported
	if supported == nil {
		supported = func(ci.CredentialType) bool { return true }
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		registry:  config.Registry,
		sink:      config.Sink,
		queue:     config.Queue,
		store:     config.Store,
		supported: supported,
		metrics:   metrics,
	}
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Result is what one pass did.
type Result struct {
	Pass Pass

	// Scheduled holds the admitted executions in admission order.
	Scheduled []*build.Execution

	// Tasks[i] is the sink's task for Scheduled[i]; nil when the sink
	// returned none.
	Tasks []*tasks.Task

	Skipped int

	// Errors holds the failures that aborted a project.
	Errors []error
}

// Err joins the project failures of the pass.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// RestartPendingBuilds schedules builds for the shas the build status store
// believes were started but never finished.
func (e *Engine) RestartPendingBuilds(ctx context.Context, projects []ci.Project, client ci.CommitStatusSource) *Result {
	result := &Result{Pass: PassRestartPending}
	e.metrics.RecordRun(result.Pass)

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if err := e.restartProject(ctx, result, project, client); err != nil {
			e.projectFailed(result, project, err)
		}
	}

	logging.Info("Reconciler", "Pass %s finished: %d scheduled, %d skipped, %d project errors",
		result.Pass, len(result.Scheduled), result.Skipped, len(result.Errors))
	return result
}

func (e *Engine) restartProject(ctx context.Context, result *Result, project ci.Project, client ci.CommitStatusSource) error {
	shas, err := e.store.PendingSHAs(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("reading pending builds: %w", err)
	}
	if len(shas) == 0 {
		return nil
	}

	branches := project.CommitBranches()
	for _, sha := range shas {
		if e.registry.Exists(project.ID, sha) {
			e.skip(result, project, sha, ReasonDuplicate)
			continue
		}

		cr, err := FindMatching(ctx, client, project.RepoFullName, branches, sha)
		switch {
		case errors.Is(err, ErrNoMatchingChangeRequest):
			logging.Info("Reconciler", "No open change request for pending build %s@%s, skipping", project.ID, sha)
			e.skip(result, project, sha, ReasonNoChangeRequest)
			continue
		case errors.Is(err, ErrAmbiguousChangeRequest):
			logging.Warn("Reconciler", "Skipping pending build %s@%s: %v", project.ID, sha, err)
			e.skip(result, project, sha, ReasonAmbiguous)
			continue
		case err != nil:
			return err
		}

		e.schedule(result, project, sha, client, ForkFor(cr, project.RepoFullName))
	}
	return nil
}

// ScheduleMissingStatusBuilds schedules builds for open change requests whose
// head sha has no commit status.
func (e *Engine) ScheduleMissingStatusBuilds(ctx context.Context, projects []ci.Project, client ci.CommitStatusSource) *Result {
	result := &Result{Pass: PassMissingStatus}
	e.metrics.RecordRun(result.Pass)

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if !e.supported(project.RequiredCredentialType) {
			logging.Info("Reconciler", "Skipping project %s: unsupported credential type %q",
				project.ID, project.RequiredCredentialType)
			e.metrics.RecordSkipped(result.Pass, ReasonUnsupportedCredential)
			result.Skipped++
			continue
		}
		if err := e.scheduleMissingProject(ctx, result, project, client); err != nil {
			e.projectFailed(result, project, err)
		}
	}

	logging.Info("Reconciler", "Pass %s finished: %d scheduled, %d skipped, %d project errors",
		result.Pass, len(result.Scheduled), result.Skipped, len(result.Errors))
	return result
}

func (e *Engine) scheduleMissingProject(ctx context.Context, result *Result, project ci.Project, client ci.CommitStatusSource) error {
	branches := project.CommitBranches()
	if len(branches) == 0 {
		logging.Debug("Reconciler", "Project %s has no commit triggers", project.ID)
		e.metrics.RecordSkipped(result.Pass, ReasonNoBranches)
		return nil
	}

	requests, err := client.OpenChangeRequests(ctx, project.RepoFullName, branches)
	if err != nil {
		return err
	}

	for _, cr := range requests {
		if e.registry.Exists(project.ID, cr.HeadSHA) {
			e.skip(result, project, cr.HeadSHA, ReasonDuplicate)
			continue
		}

		statuses, err := client.CommitStatuses(ctx, project.RepoFullName, cr.HeadSHA)
		if err != nil {
			return err
		}
		if len(statuses) > 0 {
			logging.Debug("Reconciler", "%s@%s already has %d statuses", project.ID, cr.HeadSHA, len(statuses))
			e.skip(result, project, cr.HeadSHA, ReasonHasStatus)
			continue
		}

		e.schedule(result, project, cr.HeadSHA, client, ForkFor(cr, project.RepoFullName))
	}
	return nil
}

// schedule constructs, registers, sets up and submits one execution. The key
// is admitted before Setup touches the build status store, so a pass that
// loses the race never writes a record.
func (e *Engine) schedule(result *Result, project ci.Project, sha string, client ci.CommitStatusSource, fork build.Fork) {
	execution := e.sink.Construct(project, sha, client, fork, e.queue)
	if !e.registry.Register(execution) {
		// Another pass admitted the same key between Exists and Register.
		e.skip(result, project, sha, ReasonDuplicate)
		return
	}

	if err := e.sink.Setup(execution); err != nil {
		logging.Error("Reconciler", err, "Failed to set up build %s", execution.Key())
		e.registry.Remove(execution)
		e.skip(result, project, sha, ReasonSetupFailed)
		return
	}

	_, forked := execution.Fork()
	logging.Info("Reconciler", "Scheduling build %s (pass %s, fork %t)", execution.Key(), result.Pass, forked)

	result.Scheduled = append(result.Scheduled, execution)
	result.Tasks = append(result.Tasks, e.sink.Submit(execution))
	e.metrics.RecordScheduled(result.Pass)
}

func (e *Engine) skip(result *Result, project ci.Project, sha string, reason string) {
	if reason == ReasonDuplicate {
		logging.Debug("Reconciler", "Build %s@%s already registered", project.ID, sha)
	}
	result.Skipped++
	e.metrics.RecordSkipped(result.Pass, reason)
}

func (e *Engine) projectFailed(result *Result, project ci.Project, err error) {
	err = fmt.Errorf("project %s: %w", project.ID, err)
	logging.Error("Reconciler", err, "Pass %s aborted project %s", result.Pass, project.ID)
	result.Errors = append(result.Errors, err)
	if ci.IsProviderError(err) {
		e.metrics.RecordProviderError(result.Pass, project.ID, err)
	}
}
