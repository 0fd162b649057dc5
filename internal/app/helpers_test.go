package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ciwarden/internal/config"
	"ciwarden/internal/provider"
)

// fakeGitHub serves the parts of the GitHub API ciwarden uses. Every open
// pull request targets main.
type fakeGitHub struct {
	server *httptest.Server

	mu      sync.Mutex
	pulls   []map[string]any
	created []string

	// hold, when set, stalls pull request listings until it is closed.
	hold chan struct{}
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := &fakeGitHub{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) addPull(number int, sha string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, map[string]any{
		"number": number,
		"head": map[string]any{
			"sha": sha,
			"ref": "feature",
			"repo": map[string]any{
				"full_name": "org/api",
				"clone_url": "https://example.invalid/org/api.git",
			},
		},
		"base": map[string]any{
			"ref":  "main",
			"repo": map[string]any{"full_name": "org/api"},
		},
	})
}

// holdPulls stalls every pull request listing until the returned function is
// called.
func (f *fakeGitHub) holdPulls() (release func()) {
	hold := make(chan struct{})
	f.mu.Lock()
	f.hold = hold
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

func (f *fakeGitHub) createdStatuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()
	if hold != nil && strings.HasSuffix(r.URL.Path, "/pulls") {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/statuses/"):
		var body struct {
			State string `json:"state"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.created = append(f.created, body.State)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	case strings.HasSuffix(r.URL.Path, "/pulls"):
		if r.URL.Query().Get("base") != "main" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.pulls)
	default:
		_, _ = w.Write([]byte(`[]`))
	}
}

// testConfig returns a configuration with one GitHub project whose clone
// always fails.
func testConfig(t *testing.T, baseURL string) config.Config {
	dir := t.TempDir()
	return config.Config{
		DataDir:   filepath.Join(dir, "data"),
		Workspace: config.WorkspaceConfig{Root: filepath.Join(dir, "workspaces")},
		Credentials: []config.CredentialConfig{
			{Name: "gh", Type: "github", BaseURL: baseURL, TokenEnv: "GH_TOKEN"},
		},
		Projects: []config.ProjectConfig{
			{
				ID:         "api",
				Repo:       "org/api",
				CloneURL:   filepath.Join(dir, "missing-remote"),
				Credential: "gh",
				Triggers:   []config.TriggerConfig{{Type: "pull-request", Branch: "main"}},
			},
		},
		Executor: config.ExecutorConfig{Workers: 2},
	}
}

func testOptions() ServiceOptions {
	return ServiceOptions{
		HTTPClient: provider.NewHTTPClient(provider.HTTPOptions{RetryMax: -1}),
		Getenv:     func(string) string { return "token" },
	}
}
