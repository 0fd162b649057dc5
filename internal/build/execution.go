package build

import (
	"time"

	"github.com/google/uuid"

	"ciwarden/internal/ci"
	"ciwarden/internal/gitqueue"
)

// ForkOrigin describes where the commits of a fork-originated change request
// live. Its fields are copies, not references into the change request.
type ForkOrigin struct {
	SHA      string
	Branch   string
	CloneURL string
}

// ForkOriginFrom copies the fork fields of cr.
func ForkOriginFrom(cr ci.ChangeRequest) ForkOrigin {
	return ForkOrigin{
		SHA:      cr.HeadSHA,
		Branch:   cr.Branch,
		CloneURL: cr.CloneURL,
	}
}

// Fork is an optional ForkOrigin. The zero value is absent.
type Fork struct {
	origin  ForkOrigin
	present bool
}

// NoFork is the absent Fork.
func NoFork() Fork {
	return Fork{}
}

// ForkOf wraps origin as a present Fork.
func ForkOf(origin ForkOrigin) Fork {
	return Fork{origin: origin, present: true}
}

// Get returns the origin and whether it is present.
func (f Fork) Get() (ForkOrigin, bool) {
	return f.origin, f.present
}

// Present reports whether the fork origin is set.
func (f Fork) Present() bool {
	return f.present
}

// Execution is one attempt to build a commit of a project.
type Execution struct {
	id        string
	project   ci.Project
	sha       string
	fork      Fork
	queue     *gitqueue.Queue
	client    ci.CommitStatusSource
	workspace string
	createdAt time.Time
}

// NewExecution creates an execution. Sinks normally call it from Construct.
func NewExecution(project ci.Project, sha string, client ci.CommitStatusSource, fork Fork, queue *gitqueue.Queue, workspace string) *Execution {
	return &Execution{
		id:        uuid.NewString(),
		project:   project,
		sha:       sha,
		fork:      fork,
		queue:     queue,
		client:    client,
		workspace: workspace,
		createdAt: time.Now(),
	}
}

// ID is unique per constructed execution.
func (e *Execution) ID() string { return e.id }

// Key identifies the execution in the registry.
func (e *Execution) Key() ci.BuildKey {
	return ci.BuildKey{ProjectID: e.project.ID, SHA: e.sha}
}

func (e *Execution) Project() ci.Project { return e.project }

func (e *Execution) SHA() string { return e.sha }

// Fork returns the fork origin and whether the execution was triggered by a
// fork-originated change request.
func (e *Execution) Fork() (ForkOrigin, bool) { return e.fork.Get() }

// GitQueue returns the queue every tree mutation of this execution must go
// through.
func (e *Execution) GitQueue() *gitqueue.Queue { return e.queue }

// Client returns the provider client of the execution's credential.
func (e *Execution) Client() ci.CommitStatusSource { return e.client }

// Workspace is the directory the commit is checked out into.
func (e *Execution) Workspace() string { return e.workspace }

func (e *Execution) CreatedAt() time.Time { return e.createdAt }
