package ci

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobTrigger(t *testing.T) {
	tests := []struct {
		name    string
		kind    TriggerKind
		branch  string
		want    JobTrigger
		wantErr bool
	}{
		{name: "commit", kind: TriggerKindCommit, branch: "main", want: CommitTrigger{Branch: "main"}},
		{name: "pull request", kind: TriggerKindPullRequest, branch: "main", want: PullRequestTrigger{Branch: "main"}},
		{name: "manual ignores branch", kind: TriggerKindManual, branch: "main", want: ManualTrigger{}},
		{name: "commit without branch", kind: TriggerKindCommit, wantErr: true},
		{name: "unknown kind", kind: "tag", branch: "v1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewJobTrigger(tt.kind, tt.branch)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.kind, got.Kind())
		})
	}
}

func TestProject_CommitBranches(t *testing.T) {
	p := Project{
		ID: "api",
		Triggers: []JobTrigger{
			CommitTrigger{Branch: "release"},
			PullRequestTrigger{Branch: "feature"},
			ManualTrigger{},
			CommitTrigger{Branch: "main"},
			CommitTrigger{Branch: "release"},
		},
	}

	assert.Equal(t, []string{"main", "release"}, p.CommitBranches())
}

func TestProject_CommitBranchesWithoutCommitTriggers(t *testing.T) {
	p := Project{Triggers: []JobTrigger{PullRequestTrigger{Branch: "main"}, ManualTrigger{}}}
	assert.Empty(t, p.CommitBranches())
}

func TestChangeRequest_IsFork(t *testing.T) {
	cr := ChangeRequest{SourceRepo: "alice/api", TargetRepo: "org/api"}
	assert.True(t, cr.IsFork("org/api"))

	cr.SourceRepo = "org/api"
	assert.False(t, cr.IsFork("org/api"))
}

func TestCredential_StringHidesToken(t *testing.T) {
	c := Credential{Name: "gh", Type: CredentialTypeGitHub, Token: "s3cr3t"}
	assert.NotContains(t, c.String(), "s3cr3t")
}

func TestProviderError(t *testing.T) {
	assert.NoError(t, NewProviderError("list", "org/api", nil))

	base := errors.New("connection refused")
	err := fmt.Errorf("pass failed: %w", NewProviderError("list", "org/api", base))
	assert.True(t, IsProviderError(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsProviderError(base))
}
