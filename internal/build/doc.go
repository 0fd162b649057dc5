// Package build holds the build execution type and the runner that build
// executions are handed to once admitted.
//
// An Execution is created by Runner.Construct, set up by Runner.Setup (which
// only records metadata, it never touches a checkout), admitted through the
// registry, and finally passed to Runner.Submit. The runner prepares the
// workspace through the shared git mutation queue, reports a pending commit
// status, invokes the configured build steps and records the outcome.
//
// What a build actually does is outside this package: Steps is a hook that
// defaults to doing nothing.
package build
