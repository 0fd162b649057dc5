// Package logging provides subsystem-tagged structured logging for ciwarden.
//
// It is a thin layer over log/slog. Every record carries a "subsystem"
// attribute naming the component that emitted it, and Error records carry the
// error text as an "error" attribute.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stdout)
//
//	logging.Info("Launch", "Starting %d pollers", n)
//	logging.Debug("Registry", "Suppressed duplicate %s", key)
//	logging.Warn("Reconciler", "No open change request for %s", sha)
//	logging.Error("GitQueue", err, "Operation %s failed", name)
//
// # Subsystems
//
//   - Launch: startup sequencing
//   - Reconciler: reconciliation passes
//   - Registry: build execution admission
//   - GitQueue: serialized tree mutations
//   - Runner: build hand-off
//   - Pollers: long-lived per-project pollers
//   - Provider: hosting provider clients
//   - BuildStore: build status datastore
//   - ConfigLoader: configuration loading and reloads
//
// Before Init is called, warnings and errors are written to stderr and lower
// levels are dropped.
package logging
