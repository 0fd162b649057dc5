package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciwarden/internal/ci"
)

func TestNewCatalog(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, validConfig)
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	env := map[string]string{"TEST_GITHUB_TOKEN": "ghp_secret"}
	catalog, err := NewCatalog(cfg, func(k string) string { return env[k] })
	require.NoError(t, err)

	creds := catalog.Credentials()
	require.Len(t, creds, 2)
	assert.Equal(t, "ghp_secret", creds[0].Token)
	assert.Empty(t, creds[1].Token)

	projects := catalog.Projects(creds[0])
	require.Len(t, projects, 1)
	api := projects[0]
	assert.Equal(t, "acme/api", api.RepoFullName)
	assert.Equal(t, "https://github.com/acme/api.git", api.CloneURL)
	assert.Equal(t, ci.CredentialTypeGitHub, api.RequiredCredentialType)
	assert.Equal(t, []ci.JobTrigger{ci.CommitTrigger{Branch: "main"}, ci.ManualTrigger{}}, api.Triggers)
	assert.Equal(t, []string{"main"}, api.CommitBranches())

	tools := catalog.Projects(creds[1])
	require.Len(t, tools, 1)
	assert.Equal(t, ci.CredentialTypeGitea, tools[0].RequiredCredentialType)
	assert.Empty(t, tools[0].CommitBranches())

	assert.Equal(t, []string{"api", "tools"}, []string{catalog.AllProjects()[0].ID, catalog.AllProjects()[1].ID})
	assert.Empty(t, catalog.Projects(ci.Credential{Name: "unknown"}))
}

func TestNewCatalog_UnknownCredential(t *testing.T) {
	_, err := NewCatalog(Config{
		Projects: []ProjectConfig{{ID: "api", Repo: "acme/api", Credential: "nope"}},
	}, func(string) string { return "" })
	assert.Error(t, err)
}
