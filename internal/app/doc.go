// Package app wires ciwarden together and drives its lifecycle.
//
// NewApplication initializes logging, loads config.yaml and resolves the
// launch gates from flags, the config file and the CIWARDEN_SKIP_WORKERS and
// CIWARDEN_SKIP_RESTART environment variables. Run and Reconcile then hand
// over to the Launcher, which executes the startup sequence:
//
//  1. Environment validation: the data and workspace directories must be
//     writable. Failure aborts the launch.
//  2. Services: git mutation queue, task executor, build registry, build
//     store, runner, reconciliation engine and pollers.
//  3. Clone: every project's canonical repository is cloned through the git
//     mutation queue. Failures are logged.
//  4. Workers: one poller per project, unless workers are skipped.
//  5. Reconcile: RestartPendingBuilds and ScheduleMissingStatusBuilds are
//     submitted per credential, unless restart is skipped.
//
// Steps 2 to 5 only run while the setup is correct, which by default means
// the configuration names at least one credential and one project. When it
// is not, the remaining steps are skipped without error.
//
// Run keeps serving until SIGINT or SIGTERM: it exposes Prometheus metrics,
// reloads config.yaml on change and notifies systemd when ready. Reconcile
// runs both passes once and waits for the builds they schedule.
package app
