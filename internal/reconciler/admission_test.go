package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciwarden/internal/build"
	"ciwarden/internal/buildstore"
	"ciwarden/internal/ci"
	"ciwarden/internal/gitqueue"
	"ciwarden/internal/registry"
	"ciwarden/internal/tasks"
)

// racingSource lets another admitter finish a build of a sha while the pass
// is still looking at that sha's statuses.
type racingSource struct {
	*mockSource
	onStatuses func(sha string)
}

func (r *racingSource) CommitStatuses(ctx context.Context, repo, sha string) ([]ci.CommitStatus, error) {
	if r.onStatuses != nil {
		r.onStatuses(sha)
	}
	return r.mockSource.CommitStatuses(ctx, repo, sha)
}

func TestSchedule_LosingPassLeavesStoreUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := buildstore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	queue := gitqueue.New()
	executor := tasks.NewExecutor(1)
	executor.Start(ctx)

	runner, err := build.NewRunner(build.RunnerConfig{WorkspaceRoot: t.TempDir()}, store, executor)
	require.NoError(t, err)

	reg := registry.New()
	engine := NewEngine(Config{Registry: reg, Sink: runner, Queue: queue, Store: store})

	project := testProject("P", "org/api", mainTrigger)
	source := &racingSource{mockSource: newMockSource()}
	source.requests["org/api"] = []ci.ChangeRequest{
		changeRequest(1, "org/api", "org/api", "abc123", "feature", "main"),
	}
	source.onStatuses = func(sha string) {
		winner := build.NewExecution(project, sha, source, build.NoFork(), queue, t.TempDir())
		require.True(t, reg.Register(winner))
		require.NoError(t, store.Record(buildstore.Record{ProjectID: "P", SHA: sha, State: buildstore.StateSucceeded}))
	}

	result := engine.ScheduleMissingStatusBuilds(ctx, []ci.Project{project}, source)

	assert.Empty(t, result.Scheduled)
	assert.Equal(t, 1, result.Skipped)

	rec, ok, err := store.Get("P", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, buildstore.StateSucceeded, rec.State)

	pending, err := store.PendingSHAs(ctx, "P")
	require.NoError(t, err)
	assert.Empty(t, pending, "a finished build must not be restarted")
}

func TestSchedule_SetupFailureReleasesKey(t *testing.T) {
	f := newEngineFixture(t)
	f.sink.setupErr = assert.AnError
	project := testProject("P", "org/api", mainTrigger)
	f.source.requests["org/api"] = []ci.ChangeRequest{
		changeRequest(1, "org/api", "org/api", "abc123", "feature", "main"),
	}

	result := f.engine.ScheduleMissingStatusBuilds(context.Background(), []ci.Project{project}, f.source)
	assert.Empty(t, result.Scheduled)
	assert.False(t, f.registry.Exists("P", "abc123"))

	f.sink.mu.Lock()
	f.sink.setupErr = nil
	f.sink.mu.Unlock()

	result = f.engine.ScheduleMissingStatusBuilds(context.Background(), []ci.Project{project}, f.source)
	require.Len(t, result.Scheduled, 1)
	assert.True(t, f.registry.Exists("P", "abc123"))
}

func TestSchedule_TasksLineUpWithScheduled(t *testing.T) {
	f := newEngineFixture(t)
	f.sink.nilTasks = true
	project := testProject("P", "org/api", mainTrigger)
	f.source.requests["org/api"] = []ci.ChangeRequest{
		changeRequest(1, "org/api", "org/api", "abc123", "feature", "main"),
		changeRequest(2, "org/api", "org/api", "def456", "other", "main"),
	}

	result := f.engine.ScheduleMissingStatusBuilds(context.Background(), []ci.Project{project}, f.source)

	require.Len(t, result.Scheduled, 2)
	require.Len(t, result.Tasks, 2)
	assert.Nil(t, result.Tasks[0])
	assert.Nil(t, result.Tasks[1])
}
