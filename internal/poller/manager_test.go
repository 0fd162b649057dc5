package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciwarden/internal/ci"
)

var cred = ci.Credential{Name: "gh", Type: ci.CredentialTypeGitHub}

func project(id string) ci.Project {
	return ci.Project{ID: id, RepoFullName: "org/" + id, RequiredCredentialType: ci.CredentialTypeGitHub}
}

// pollRecorder counts polls per project.
type pollRecorder struct {
	mu    sync.Mutex
	polls map[string]int
	repos map[string]string
}

func newPollRecorder() *pollRecorder {
	return &pollRecorder{polls: make(map[string]int), repos: make(map[string]string)}
}

func (r *pollRecorder) poll(ctx context.Context, p ci.Project, c ci.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[p.ID]++
	r.repos[p.ID] = p.RepoFullName
	return nil
}

func (r *pollRecorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls[id]
}

func (r *pollRecorder) repo(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repos[id]
}

func TestManager_StartPollsImmediatelyAndRepeatedly(t *testing.T) {
	rec := newPollRecorder()
	m := NewManager(context.Background(), Config{Interval: 10 * time.Millisecond, Poll: rec.poll})
	defer m.Stop()

	assert.True(t, m.Start(project("api"), cred))

	assert.Eventually(t, func() bool { return rec.count("api") >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestManager_DuplicateStartIsIgnored(t *testing.T) {
	rec := newPollRecorder()
	m := NewManager(context.Background(), Config{Interval: 10 * time.Millisecond, Poll: rec.poll})
	defer m.Stop()

	require.True(t, m.Start(project("api"), cred))

	updated := project("api")
	updated.RepoFullName = "org/api-renamed"
	assert.False(t, m.Start(updated, cred))
	assert.Equal(t, 1, m.Count())

	assert.Eventually(t, func() bool { return rec.repo("api") == "org/api-renamed" }, 2*time.Second, 5*time.Millisecond)
}

func TestManager_OnePollerPerPair(t *testing.T) {
	m := NewManager(context.Background(), Config{Interval: time.Hour})
	defer m.Stop()

	other := ci.Credential{Name: "gh-bot", Type: ci.CredentialTypeGitHub}
	m.Start(project("api"), cred)
	m.Start(project("api"), other)
	m.Start(project("web"), cred)

	assert.Equal(t, 3, m.Count())
	assert.Equal(t, []Key{
		{ProjectID: "api", Credential: "gh"},
		{ProjectID: "api", Credential: "gh-bot"},
		{ProjectID: "web", Credential: "gh"},
	}, m.Keys())
}

func TestManager_PollErrorsDoNotStopTheLoop(t *testing.T) {
	var polls int32
	m := NewManager(context.Background(), Config{
		Interval: 5 * time.Millisecond,
		Poll: func(ctx context.Context, p ci.Project, c ci.Credential) error {
			atomic.AddInt32(&polls, 1)
			return errors.New("provider down")
		},
	})
	defer m.Stop()

	m.Start(project("api"), cred)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&polls) >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestManager_Sync(t *testing.T) {
	m := NewManager(context.Background(), Config{Interval: time.Hour})
	defer m.Stop()

	other := ci.Credential{Name: "gitlab", Type: ci.CredentialTypeGitLab}
	m.Start(project("legacy"), other)

	m.Sync(cred, []ci.Project{project("api"), project("web")})
	assert.Equal(t, 3, m.Count())

	m.Sync(cred, []ci.Project{project("web")})
	assert.Equal(t, []Key{
		{ProjectID: "legacy", Credential: "gitlab"},
		{ProjectID: "web", Credential: "gh"},
	}, m.Keys())
}

func TestManager_StopWaitsAndRejectsNewPollers(t *testing.T) {
	var running int32
	m := NewManager(context.Background(), Config{
		Interval: time.Millisecond,
		Poll: func(ctx context.Context, p ci.Project, c ci.Credential) error {
			atomic.AddInt32(&running, 1)
			defer atomic.AddInt32(&running, -1)
			<-ctx.Done()
			return nil
		},
	})

	m.Start(project("api"), cred)
	m.Start(project("web"), cred)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&running) == 2 }, 2*time.Second, time.Millisecond)

	m.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&running))
	assert.Equal(t, 0, m.Count())
	assert.False(t, m.Start(project("late"), cred))

	m.Stop()
}

func TestManager_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, Config{Interval: time.Hour})
	m.Start(project("api"), cred)

	cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pollers did not stop with their parent context")
	}
}
