package build

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"ciwarden/internal/buildstore"
	"ciwarden/internal/ci"
	"ciwarden/internal/gitqueue"
	"ciwarden/internal/tasks"
	"ciwarden/pkg/logging"
	pkgstrings "ciwarden/pkg/strings"
)

// DefaultStatusContext is the commit status context builds report under.
const DefaultStatusContext = "ciwarden"

// Steps runs the actual build once the workspace is prepared.
type Steps func(ctx context.Context, e *Execution) error

// Recorder persists build state.
type Recorder interface {
	Record(rec buildstore.Record) error
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// WorkspaceRoot is the directory every workspace lives under.
	WorkspaceRoot string

	// PathTemplate is a text/template (with sprig functions) rendering the
	// workspace path relative to WorkspaceRoot. Fields: .Project, .Repo, .SHA.
	PathTemplate string

	// StatusContext names the commit statuses the runner reports.
	StatusContext string

	// Auth returns the git credentials for a project; nil means anonymous.
	Auth func(project ci.Project) transport.AuthMethod

	// Steps runs the build. Nil means no steps.
	Steps Steps
}

// Runner is the sink admitted build executions are handed to.
type Runner struct {
	config   RunnerConfig
	layout   *workspaceLayout
	store    Recorder
	executor *tasks.Executor

	// prepare builds the git operation that readies a workspace.
	prepare func(e *Execution) gitqueue.Operation
}

// NewRunner creates a runner recording state in store and running builds on
// executor.
func NewRunner(config RunnerConfig, store Recorder, executor *tasks.Executor) (*Runner, error) {
	layout, err := newWorkspaceLayout(config.WorkspaceRoot, config.PathTemplate)
	if err != nil {
		return nil, err
	}
	if config.StatusContext == "" {
		config.StatusContext = DefaultStatusContext
	}
	if config.Auth == nil {
		config.Auth = func(ci.Project) transport.AuthMethod { return nil }
	}

	r := &Runner{
		config:   config,
		layout:   layout,
		store:    store,
		executor: executor,
	}
	r.prepare = r.prepareWorkspace
	return r, nil
}

// Construct creates an execution. It performs no I/O; a workspace path that
// cannot be rendered is reported by Setup.
func (r *Runner) Construct(project ci.Project, sha string, client ci.CommitStatusSource, fork Fork, queue *gitqueue.Queue) *Execution {
	dir, err := r.layout.dir(project.ID, project.RepoFullName, sha)
	if err != nil {
		dir = ""
		logging.Warn("Runner", "No workspace for %s@%s: %v", project.ID, sha, err)
	}
	return NewExecution(project, sha, client, fork, queue, dir)
}

// Setup validates the execution and records it as pending. It never touches a
// checkout.
func (r *Runner) Setup(e *Execution) error {
	if e.Workspace() == "" {
		return fmt.Errorf("execution %s has no workspace", e.Key())
	}
	if e.GitQueue() == nil {
		return fmt.Errorf("execution %s has no git queue", e.Key())
	}
	return r.record(e, buildstore.StatePending, "")
}

// Submit hands the execution to the executor.
func (r *Runner) Submit(e *Execution) *tasks.Task {
	logging.Info("Runner", "Starting build %s (%s)", e.Key(), e.ID())
	return r.executor.Submit("build "+e.Key().String(), func(ctx context.Context) error {
		return r.run(ctx, e)
	})
}

// BaseDir is the directory the canonical clone of repo is kept in.
func (r *Runner) BaseDir(repo string) string {
	return r.layout.baseDir(repo)
}

// CloneBase returns the operation cloning a project's canonical repository
// into BaseDir. It must be submitted to the git mutation queue.
func (r *Runner) CloneBase(project ci.Project) gitqueue.Operation {
	return gitqueue.Clone(project.CloneURL, r.BaseDir(project.RepoFullName), r.config.Auth(project))
}

func (r *Runner) run(ctx context.Context, e *Execution) error {
	if err := r.record(e, buildstore.StateRunning, ""); err != nil {
		return err
	}

	if err := e.GitQueue().Do(ctx, "prepare "+e.Key().String(), r.prepare(e)); err != nil {
		r.finish(ctx, e, fmt.Errorf("preparing workspace: %w", err))
		return err
	}

	r.report(ctx, e, ci.CommitStatePending, "Build started")

	var err error
	if r.config.Steps != nil {
		err = r.config.Steps(ctx, e)
	}
	r.finish(ctx, e, err)
	return err
}

// prepareWorkspace clones the canonical repository, brings it up to date,
// fetches the fork branch when there is one and checks out the sha. The
// steps run as one queue item.
func (r *Runner) prepareWorkspace(e *Execution) gitqueue.Operation {
	project := e.Project()
	auth := r.config.Auth(project)
	dir := e.Workspace()

	ops := []gitqueue.Operation{
		gitqueue.Clone(project.CloneURL, dir, auth),
		gitqueue.Fetch(dir, project.CloneURL, []string{"+refs/heads/*:refs/remotes/origin/*"}, auth),
	}
	if origin, ok := e.Fork(); ok {
		ops = append(ops, gitqueue.Fetch(dir, origin.CloneURL, []string{gitqueue.ForkRefSpec(origin.Branch)}, auth))
	}
	ops = append(ops, gitqueue.Checkout(dir, e.SHA()))

	return gitqueue.Sequence(ops...)
}

func (r *Runner) finish(ctx context.Context, e *Execution, err error) {
	if err != nil {
		logging.Error("Runner", err, "Build %s failed", e.Key())
		r.report(ctx, e, ci.CommitStateFailure, pkgstrings.StatusDescription("Build failed", err))
		if recErr := r.record(e, buildstore.StateFailed, err.Error()); recErr != nil {
			logging.Error("Runner", recErr, "Failed to record result of %s", e.Key())
		}
		return
	}

	logging.Info("Runner", "Build %s succeeded", e.Key())
	r.report(ctx, e, ci.CommitStateSuccess, "Build succeeded")
	if recErr := r.record(e, buildstore.StateSucceeded, ""); recErr != nil {
		logging.Error("Runner", recErr, "Failed to record result of %s", e.Key())
	}
}

func (r *Runner) report(ctx context.Context, e *Execution, state ci.CommitState, description string) {
	if e.Client() == nil {
		return
	}
	err := e.Client().SetCommitStatus(ctx, e.Project().RepoFullName, e.SHA(), ci.CommitStatus{
		State:       state,
		Context:     r.config.StatusContext,
		Description: description,
	})
	if err != nil {
		logging.Warn("Runner", "Failed to report %s status for %s: %v", state, e.Key(), err)
	}
}

func (r *Runner) record(e *Execution, state buildstore.State, message string) error {
	if r.store == nil {
		return nil
	}
	return r.store.Record(buildstore.Record{
		ProjectID: e.Project().ID,
		SHA:       e.SHA(),
		State:     state,
		Fork:      e.fork.Present(),
		Message:   message,
	})
}
