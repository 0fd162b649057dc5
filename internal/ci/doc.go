// Package ci defines the domain model shared by every ciwarden component:
// projects and their job triggers, change requests and commit statuses as
// reported by a hosting provider, credentials, and the interfaces of the
// collaborators the reconciliation core consumes (commit status sources, the
// build status datastore, and the project configuration).
//
// JobTrigger is a sealed variant. Code that needs to branch on the trigger
// kind uses a type switch over CommitTrigger, PullRequestTrigger and
// ManualTrigger; the unexported marker method keeps other packages from
// adding kinds the switches do not know about.
package ci
