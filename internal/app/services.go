package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ciwarden/internal/build"
	"ciwarden/internal/buildstore"
	"ciwarden/internal/ci"
	"ciwarden/internal/config"
	"ciwarden/internal/gitqueue"
	"ciwarden/internal/poller"
	"ciwarden/internal/provider"
	"ciwarden/internal/reconciler"
	"ciwarden/internal/registry"
	"ciwarden/internal/tasks"
	"ciwarden/pkg/logging"
)

// Services holds every long-lived component of a running ciwarden.
//
// Service Dependencies:
// The components are created in dependency order:
//  1. Git mutation queue, task executor and build registry
//  2. Build status store
//  3. Build runner (needs queue, store and executor)
//  4. Reconciliation engine (needs registry, runner, queue and store)
//  5. Pollers (run the engine)
type Services struct {
	// GitQueue serializes every operation that mutates a checkout. There is
	// exactly one per process.
	GitQueue *gitqueue.Queue

	Executor *tasks.Executor
	Registry *registry.Registry
	Store    *buildstore.Store
	Runner   *build.Runner
	Engine   *reconciler.Engine
	Pollers  *poller.Manager

	// MetricsRegistry collects every ciwarden metric.
	MetricsRegistry *prometheus.Registry

	httpClient *http.Client

	mu      sync.RWMutex
	config  config.Config
	catalog *config.Catalog
	sources map[string]ci.CommitStatusSource
}

// ServiceOptions overrides parts of the service graph. Zero values select
// the defaults.
type ServiceOptions struct {
	// Steps runs the build after the workspace is prepared.
	Steps build.Steps

	// HTTPClient is used by the providers.
	HTTPClient *http.Client

	// Getenv resolves credential tokens.
	Getenv func(string) string
}

// InitializeServices creates the service graph for cfg. Background workers
// stop when ctx is done; Close releases everything else.
func InitializeServices(ctx context.Context, cfg config.Config, opts ServiceOptions) (*Services, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = provider.NewHTTPClient(provider.HTTPOptions{})
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	catalog, err := config.NewCatalog(cfg, opts.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve projects: %w", err)
	}

	s := &Services{
		GitQueue:        gitqueue.New(),
		Executor:        tasks.NewExecutor(cfg.Executor.Workers),
		Registry:        registry.New(),
		MetricsRegistry: prometheus.NewRegistry(),
		httpClient:      opts.HTTPClient,
		config:          cfg,
		catalog:         catalog,
		sources:         make(map[string]ci.CommitStatusSource),
	}

	s.Store, err = buildstore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open build store: %w", err)
	}

	s.Runner, err = build.NewRunner(build.RunnerConfig{
		WorkspaceRoot: cfg.Workspace.Root,
		PathTemplate:  cfg.Workspace.PathTemplate,
		Auth:          s.gitAuth,
		Steps:         opts.Steps,
	}, s.Store, s.Executor)
	if err != nil {
		_ = s.Store.Close()
		return nil, fmt.Errorf("failed to create build runner: %w", err)
	}

	s.Engine = reconciler.NewEngine(reconciler.Config{
		Registry:  s.Registry,
		Sink:      s.Runner,
		Queue:     s.GitQueue,
		Store:     s.Store,
		Supported: provider.Supported,
		Metrics:   reconciler.NewMetrics(s.MetricsRegistry),
	})

	s.Pollers = poller.NewManager(ctx, poller.Config{
		Interval:     cfg.Poll.Interval,
		JitterFactor: poller.DefaultJitterFactor,
		Poll:         s.poll,
	})

	s.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := reconciler.RegisterStateGauges(s.MetricsRegistry, s.Registry.Len, s.GitQueue.Len, s.Pollers.Count); err != nil {
		_ = s.Store.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s.GitQueue.Start(ctx)
	s.Executor.Start(ctx)

	logging.Info("Launch", "Services initialized (%d workers, data in %s)", s.Executor.Workers(), cfg.DataDir)
	return s, nil
}

// Catalog returns the current project catalog.
func (s *Services) Catalog() *config.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Config returns the configuration the services currently run with.
func (s *Services) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Source returns the provider client for a credential, creating it on first
// use.
func (s *Services) Source(cred ci.Credential) (ci.CommitStatusSource, error) {
	s.mu.RLock()
	source, ok := s.sources[cred.Name]
	s.mu.RUnlock()
	if ok {
		return source, nil
	}

	source, err := provider.New(cred, s.httpClient)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sources[cred.Name]; ok {
		return existing, nil
	}
	s.sources[cred.Name] = source
	return source, nil
}

// Reload swaps in a new configuration. Provider clients are recreated on
// next use; the store, runner and executor keep their settings until
// restart.
func (s *Services) Reload(cfg config.Config, getenv func(string) string) (*config.Catalog, error) {
	catalog, err := config.NewCatalog(cfg, getenv)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.config = cfg
	s.catalog = catalog
	s.sources = make(map[string]ci.CommitStatusSource)
	s.mu.Unlock()
	return catalog, nil
}

// gitAuth returns the git credentials of a project's provider account.
func (s *Services) gitAuth(project ci.Project) transport.AuthMethod {
	for _, cred := range s.Catalog().Credentials() {
		if cred.Name == project.Credential {
			return gitqueue.TokenAuth(cred.Token)
		}
	}
	return nil
}

// poll is the poller body: one missing-status pass for one project.
func (s *Services) poll(ctx context.Context, project ci.Project, cred ci.Credential) error {
	source, err := s.Source(cred)
	if err != nil {
		return err
	}
	return s.Engine.ScheduleMissingStatusBuilds(ctx, []ci.Project{project}, source).Err()
}

// Close stops the pollers, drains the executor and the git queue and closes
// the store.
func (s *Services) Close(ctx context.Context) error {
	s.Pollers.Stop()

	var errs []error
	if err := s.Executor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor: %w", err))
	}
	s.GitQueue.Shutdown()
	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("build store: %w", err))
	}
	return errors.Join(errs...)
}
