package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ciwarden/internal/config"
	"ciwarden/internal/reconciler"
	"ciwarden/internal/tasks"
	"ciwarden/pkg/logging"
)

// shutdownTimeout bounds how long Close waits for running builds.
const shutdownTimeout = 30 * time.Second

// Application bootstraps and runs ciwarden.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: initialize logging, load configuration, resolve gates
//  2. Execution phase: launch and serve, or reconcile once
//
// Example usage:
//
//	cfg := app.NewConfig(false, "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config *Config
	gates  Gates
	opts   ServiceOptions

	// newLauncher is replaced in tests.
	newLauncher func(cfg config.Config, gates Gates, opts ServiceOptions) *Launcher
}

// NewApplication initializes logging, loads the configuration file and
// evaluates the launch gates. Services are not created until Run or
// Reconcile.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	logging.Init(appLogLevel, cfg.LogFormat, os.Stderr)

	if cfg.CiwardenConfig == nil {
		configPath := cfg.ConfigPath
		if configPath == "" {
			configPath = config.GetDefaultConfigPathOrPanic()
			cfg.ConfigPath = configPath
		}
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
		cfg.CiwardenConfig = &loaded
		logging.Info("Bootstrap", "Loaded configuration from %s", configPath)
	}

	gates, err := resolveGates(cfg, *cfg.CiwardenConfig, os.Getenv)
	if err != nil {
		return nil, err
	}

	return &Application{
		config:      cfg,
		gates:       gates,
		opts:        ServiceOptions{Getenv: os.Getenv},
		newLauncher: NewLauncher,
	}, nil
}

// Gates returns the launch gates resolved at bootstrap.
func (a *Application) Gates() Gates {
	return a.gates
}

// Run launches ciwarden and serves until ctx is done or SIGINT or SIGTERM
// arrives.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	launch, err := a.newLauncher(*a.config.CiwardenConfig, a.gates, a.opts).Launch(ctx)
	if err != nil {
		return err
	}
	if launch.Services == nil {
		logging.Warn("Bootstrap", "No credentials or projects configured, nothing to do")
		return nil
	}
	services := launch.Services

	var metricsServer *http.Server
	if addr := a.config.CiwardenConfig.Metrics.Address; addr != "" {
		metricsServer = a.serveMetrics(addr, services)
	}

	watcher := config.NewWatcher(a.config.ConfigPath, 0, func(cfg config.Config) {
		a.applyConfig(services, cfg)
	})
	if err := watcher.Start(ctx); err != nil {
		logging.Warn("Bootstrap", "Configuration changes will not be picked up: %v", err)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Debug("Bootstrap", "sd_notify failed: %v", err)
	}
	logging.Info("Bootstrap", "ciwarden is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logging.Info("Bootstrap", "Received %s, shutting down", sig)
	case <-ctx.Done():
		logging.Info("Bootstrap", "Context done, shutting down")
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	_ = watcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	cancel()
	return services.Close(shutdownCtx)
}

func (a *Application) serveMetrics(addr string, services *Services) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(services.MetricsRegistry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("Bootstrap", "Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Bootstrap", err, "Metrics server stopped")
		}
	}()
	return server
}

// applyConfig swaps in a reloaded configuration, resyncs the pollers and
// looks for commits of new projects that have no status yet.
func (a *Application) applyConfig(services *Services, cfg config.Config) {
	catalog, err := services.Reload(cfg, a.opts.Getenv)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to apply reloaded configuration")
		return
	}

	for _, cred := range catalog.Credentials() {
		if !a.gates.SkipWorkers {
			services.Pollers.Sync(cred, pollableProjects(catalog, cred))
		}
		source, err := services.Source(cred)
		if err != nil {
			logging.Warn("Bootstrap", "Not reconciling credential %s: %v", cred, err)
			continue
		}
		projects := catalog.Projects(cred)
		services.Executor.Submit("reload "+cred.Name, func(ctx context.Context) error {
			return services.Engine.ScheduleMissingStatusBuilds(ctx, projects, source).Err()
		})
	}
	logging.Info("Bootstrap", "Applied reloaded configuration (%d projects)", len(catalog.AllProjects()))
}

// BuildOutcome is the final state of one build scheduled by a reconcile run.
type BuildOutcome struct {
	Pass      reconciler.Pass
	ProjectID string
	SHA       string
	Forked    bool
	State     tasks.State
	Duration  time.Duration
	Err       error
}

// ReconcileReport summarizes a one-shot reconcile run.
type ReconcileReport struct {
	Passes  []*PassTask
	Builds  []BuildOutcome
	Metrics reconciler.MetricsSummary
}

// Reconcile runs both passes once without starting pollers and waits for
// every scheduled build to finish.
func (a *Application) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	gates := a.gates
	gates.SkipWorkers = true
	gates.SkipRestart = false

	launch, err := a.newLauncher(*a.config.CiwardenConfig, gates, a.opts).Launch(ctx)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{}
	if launch.Services == nil {
		return report, nil
	}
	services := launch.Services
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := services.Close(closeCtx); err != nil {
			logging.Error("Bootstrap", err, "Failed to shut down cleanly")
		}
	}()

	report.Passes = launch.Passes
	var errs []error
	for _, pass := range launch.Passes {
		if err := pass.Task.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s for %s: %w", pass.Pass, pass.Credential.Name, err))
		}
		result := pass.Result()
		if result == nil {
			continue
		}
		report.Builds = append(report.Builds, buildOutcomes(ctx, result)...)
	}
	report.Metrics = services.Engine.Metrics().GetSummary()
	return report, errors.Join(errs...)
}

// errNotSubmitted marks a scheduled execution the sink returned no task for.
var errNotSubmitted = errors.New("build was not submitted")

// buildOutcomes waits for the builds of one pass result.
func buildOutcomes(ctx context.Context, result *reconciler.Result) []BuildOutcome {
	outcomes := make([]BuildOutcome, 0, len(result.Scheduled))
	for i, execution := range result.Scheduled {
		_, forked := execution.Fork()
		outcome := BuildOutcome{
			Pass:      result.Pass,
			ProjectID: execution.Project().ID,
			SHA:       execution.SHA(),
			Forked:    forked,
		}

		var task *tasks.Task
		if i < len(result.Tasks) {
			task = result.Tasks[i]
		}
		if task == nil {
			outcome.State = tasks.StateFailed
			outcome.Err = errNotSubmitted
		} else {
			_ = task.Wait(ctx)
			outcome.State = task.State()
			outcome.Duration = task.Duration()
			outcome.Err = task.Err()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
