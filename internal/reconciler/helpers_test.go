package reconciler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ciwarden/internal/build"
	"ciwarden/internal/ci"
	"ciwarden/internal/gitqueue"
	"ciwarden/internal/registry"
	"ciwarden/internal/tasks"
)

// mockSource is an in-memory CommitStatusSource.
type mockSource struct {
	mu sync.Mutex

	requests map[string][]ci.ChangeRequest
	statuses map[string][]ci.CommitStatus
	failRepo map[string]error

	openCalls    int
	statusCalls  int
	branchesSeen [][]string
}

func newMockSource() *mockSource {
	return &mockSource{
		requests: make(map[string][]ci.ChangeRequest),
		statuses: make(map[string][]ci.CommitStatus),
		failRepo: make(map[string]error),
	}
}

func (m *mockSource) Type() ci.CredentialType { return ci.CredentialTypeGitHub }

func (m *mockSource) OpenChangeRequests(ctx context.Context, repo string, branches []string) ([]ci.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	m.branchesSeen = append(m.branchesSeen, branches)
	if err := m.failRepo[repo]; err != nil {
		return nil, ci.NewProviderError("list pull requests", repo, err)
	}
	var out []ci.ChangeRequest
	for _, cr := range m.requests[repo] {
		for _, b := range branches {
			if cr.TargetBranch == b {
				out = append(out, cr)
				break
			}
		}
	}
	return out, nil
}

func (m *mockSource) CommitStatuses(ctx context.Context, repo, sha string) ([]ci.CommitStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	return m.statuses[sha], nil
}

func (m *mockSource) SetCommitStatus(ctx context.Context, repo, sha string, status ci.CommitStatus) error {
	return nil
}

func (m *mockSource) calls() (open, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls, m.statusCalls
}

// mockStore maps project ids to pending shas.
type mockStore struct {
	pending map[string][]string
	err     error
}

func (m *mockStore) PendingSHAs(ctx context.Context, projectID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pending[projectID], nil
}

// mockSink constructs real executions and runs no-op tasks.
type mockSink struct {
	mu        sync.Mutex
	executor  *tasks.Executor
	setupErr  error
	nilTasks  bool
	setups    int
	submitted []*build.Execution
}

func (m *mockSink) Construct(project ci.Project, sha string, client ci.CommitStatusSource, fork build.Fork, queue *gitqueue.Queue) *build.Execution {
	return build.NewExecution(project, sha, client, fork, queue, "/workspace/"+sha)
}

func (m *mockSink) Setup(e *build.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setups++
	return m.setupErr
}

func (m *mockSink) Submit(e *build.Execution) *tasks.Task {
	m.mu.Lock()
	m.submitted = append(m.submitted, e)
	nilTasks := m.nilTasks
	m.mu.Unlock()
	if nilTasks {
		return nil
	}
	return m.executor.Submit("build "+e.Key().String(), func(ctx context.Context) error { return nil })
}

func (m *mockSink) submissions() []*build.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*build.Execution(nil), m.submitted...)
}

type engineFixture struct {
	engine   *Engine
	registry *registry.Registry
	source   *mockSource
	store    *mockStore
	sink     *mockSink
	queue    *gitqueue.Queue
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	executor := tasks.NewExecutor(4)
	executor.Start(ctx)

	f := &engineFixture{
		registry: registry.New(),
		source:   newMockSource(),
		store:    &mockStore{pending: make(map[string][]string)},
		sink:     &mockSink{executor: executor},
		queue:    gitqueue.New(),
	}
	f.engine = NewEngine(Config{
		Registry:  f.registry,
		Sink:      f.sink,
		Queue:     f.queue,
		Store:     f.store,
		Supported: func(t ci.CredentialType) bool { return t != ci.CredentialTypeBitbucket },
	})
	require.NotNil(t, f.engine.Metrics())
	return f
}

func testProject(id, repo string, triggers ...ci.JobTrigger) ci.Project {
	return ci.Project{
		ID:                     id,
		RepoFullName:           repo,
		CloneURL:               "https://git.example.com/" + repo + ".git",
		RequiredCredentialType: ci.CredentialTypeGitHub,
		Triggers:               triggers,
	}
}

func changeRequest(number int, source, target, sha, branch, targetBranch string) ci.ChangeRequest {
	return ci.ChangeRequest{
		Number:       number,
		SourceRepo:   source,
		TargetRepo:   target,
		HeadSHA:      sha,
		Branch:       branch,
		TargetBranch: targetBranch,
		CloneURL:     "https://git.example.com/" + source + ".git",
	}
}
