package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"ciwarden/internal/ci"
	"ciwarden/internal/config"
	"ciwarden/internal/provider"
	"ciwarden/internal/reconciler"
	"ciwarden/internal/tasks"
	"ciwarden/pkg/logging"
)

// PassTask is a reconciliation pass submitted for one credential.
type PassTask struct {
	Pass       reconciler.Pass
	Credential ci.Credential
	Task       *tasks.Task

	mu     sync.Mutex
	result *reconciler.Result
}

// Result returns the pass result once the task has finished.
func (p *PassTask) Result() *reconciler.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *PassTask) setResult(r *reconciler.Result) {
	p.mu.Lock()
	p.result = r
	p.mu.Unlock()
}

// Launch is what the launch sequence produced.
type Launch struct {
	// Services is nil when the sequence stopped before constructing them.
	Services *Services

	// Passes are the submitted reconciliation passes. Launch does not wait
	// for them.
	Passes []*PassTask

	// Completed reports whether every step ran.
	Completed bool
}

// Launcher runs the startup steps in order: environment validation, services
// construction, repository cloning, worker start and pending work
// reconciliation. Only environment validation and services construction can
// fail the launch. Every step after environment validation first checks the
// setup predicate; once it is unmet the remaining steps are skipped.
type Launcher struct {
	config config.Config
	gates  Gates
	opts   ServiceOptions

	// ValidateEnvironment checks the host before anything is built.
	ValidateEnvironment func(cfg config.Config) error

	// SetupCorrect is the predicate gating every later step.
	SetupCorrect func(cfg config.Config, services *Services) bool
}

// NewLauncher creates a launcher with the default environment check and
// setup predicate.
func NewLauncher(cfg config.Config, gates Gates, opts ServiceOptions) *Launcher {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	return &Launcher{
		config:              cfg,
		gates:               gates,
		opts:                opts,
		ValidateEnvironment: validateEnvironment,
		SetupCorrect:        setupCorrect,
	}
}

type launchStep struct {
	name string
	run  func(ctx context.Context, l *Launch) error
}

// Launch runs the sequence. On error any services already built are closed.
func (ln *Launcher) Launch(ctx context.Context) (*Launch, error) {
	if err := ln.ValidateEnvironment(ln.config); err != nil {
		return nil, fmt.Errorf("environment validation failed: %w", err)
	}

	steps := []launchStep{
		{name: "services", run: ln.constructServices},
		{name: "clone", run: ln.cloneRepositories},
		{name: "workers", run: ln.startWorkers},
		{name: "reconcile", run: ln.reconcilePendingWork},
	}

	launch := &Launch{}
	for _, step := range steps {
		if !ln.SetupCorrect(ln.config, launch.Services) {
			logging.Debug("Launch", "Setup incomplete, skipping %s and later steps", step.name)
			return launch, nil
		}
		logging.Debug("Launch", "Running launch step %s", step.name)
		if err := step.run(ctx, launch); err != nil {
			if launch.Services != nil {
				_ = launch.Services.Close(context.Background())
			}
			return nil, fmt.Errorf("launch step %s failed: %w", step.name, err)
		}
	}

	launch.Completed = true
	logging.Info("Launch", "Launch sequence complete")
	return launch, nil
}

func (ln *Launcher) constructServices(ctx context.Context, l *Launch) error {
	services, err := InitializeServices(ctx, ln.config, ln.opts)
	if err != nil {
		return err
	}
	l.Services = services
	return nil
}

// cloneRepositories makes sure every project has its base clone. All clones
// go through the git mutation queue; failures are logged per project.
func (ln *Launcher) cloneRepositories(ctx context.Context, l *Launch) error {
	s := l.Services
	var g errgroup.Group
	for _, project := range s.Catalog().AllProjects() {
		project := project
		g.Go(func() error {
			name := "clone " + project.RepoFullName
			if err := s.GitQueue.Do(ctx, name, s.Runner.CloneBase(project)); err != nil {
				logging.Error("Launch", err, "Failed to clone %s for project %s", project.RepoFullName, project.ID)
			}
			return nil
		})
	}
	return g.Wait()
}

func (ln *Launcher) startWorkers(ctx context.Context, l *Launch) error {
	if ln.gates.SkipWorkers {
		logging.Info("Launch", "Skipping worker start")
		return nil
	}

	s := l.Services
	catalog := s.Catalog()
	for _, cred := range catalog.Credentials() {
		for _, project := range pollableProjects(catalog, cred) {
			s.Pollers.Start(project, cred)
		}
	}
	if s.Pollers.Count() == 0 {
		logging.Warn("Launch", "No pollers are running; nothing will be built until restart")
	}
	return nil
}

// pollableProjects returns the projects of cred to poll. A credential type
// without a provider integration has none.
func pollableProjects(catalog *config.Catalog, cred ci.Credential) []ci.Project {
	if !provider.Supported(cred.Type) {
		logging.Warn("Launch", "Not polling credential %s: %v", cred, ci.ErrUnsupportedCredentialType)
		return nil
	}
	return catalog.Projects(cred)
}

// reconcilePendingWork submits both passes per credential. It does not wait
// for them.
func (ln *Launcher) reconcilePendingWork(ctx context.Context, l *Launch) error {
	if ln.gates.SkipRestart {
		logging.Info("Launch", "Skipping pending work reconciliation")
		return nil
	}
	for _, cred := range l.Services.Catalog().Credentials() {
		l.Passes = append(l.Passes, SubmitPasses(l.Services, cred)...)
	}
	return nil
}

// SubmitPasses submits RestartPendingBuilds and ScheduleMissingStatusBuilds
// for the projects of cred as two independent tasks.
func SubmitPasses(s *Services, cred ci.Credential) []*PassTask {
	source, err := s.Source(cred)
	if err != nil {
		logging.Warn("Launch", "Not reconciling credential %s: %v", cred, err)
		return nil
	}
	projects := s.Catalog().Projects(cred)

	restart := &PassTask{Pass: reconciler.PassRestartPending, Credential: cred}
	restart.Task = s.Executor.Submit(fmt.Sprintf("%s %s", restart.Pass, cred.Name), func(ctx context.Context) error {
		result := s.Engine.RestartPendingBuilds(ctx, projects, source)
		restart.setResult(result)
		return result.Err()
	})

	missing := &PassTask{Pass: reconciler.PassMissingStatus, Credential: cred}
	missing.Task = s.Executor.Submit(fmt.Sprintf("%s %s", missing.Pass, cred.Name), func(ctx context.Context) error {
		result := s.Engine.ScheduleMissingStatusBuilds(ctx, projects, source)
		missing.setResult(result)
		return result.Err()
	})

	return []*PassTask{restart, missing}
}

// validateEnvironment makes sure the data and workspace directories can be
// written.
func validateEnvironment(cfg config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.Workspace.Root} {
		if dir == "" {
			return fmt.Errorf("directory not configured")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".ciwarden-check-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		logging.Debug("Launch", "Directory %s is writable", filepath.Clean(dir))
	}
	return nil
}

// setupCorrect requires at least one credential with projects, and once
// services exist, a running git queue to hand executions to.
func setupCorrect(cfg config.Config, services *Services) bool {
	if len(cfg.Credentials) == 0 || len(cfg.Projects) == 0 {
		return false
	}
	return services == nil || services.GitQueue != nil
}
