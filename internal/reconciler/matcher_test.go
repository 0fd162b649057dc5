package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciwarden/internal/ci"
)

func TestFindMatching(t *testing.T) {
	source := newMockSource()
	source.requests["org/api"] = []ci.ChangeRequest{
		changeRequest(1, "org/api", "org/api", "aaa111", "feature", "main"),
		changeRequest(2, "alice/api", "org/api", "bbb222", "fix", "main"),
		changeRequest(3, "org/api", "org/api", "ccc333", "backport", "release"),
		changeRequest(4, "org/api", "org/api", "ddd444", "one", "main"),
		changeRequest(5, "org/api", "org/api", "ddd444", "two", "main"),
	}

	tests := []struct {
		name     string
		branches []string
		sha      string
		want     int
		wantErr  error
	}{
		{name: "same repository", branches: []string{"main"}, sha: "aaa111", want: 1},
		{name: "fork", branches: []string{"main"}, sha: "bbb222", want: 2},
		{name: "branch not watched", branches: []string{"main"}, sha: "ccc333", wantErr: ErrNoMatchingChangeRequest},
		{name: "other branch watched", branches: []string{"main", "release"}, sha: "ccc333", want: 3},
		{name: "unknown sha", branches: []string{"main"}, sha: "fff999", wantErr: ErrNoMatchingChangeRequest},
		{name: "ambiguous", branches: []string{"main"}, sha: "ddd444", wantErr: ErrAmbiguousChangeRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr, err := FindMatching(context.Background(), source, "org/api", tt.branches, tt.sha)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cr.Number)
		})
	}
}

func TestFindMatching_EmptyBranchesQueriesNothing(t *testing.T) {
	source := newMockSource()
	source.requests["org/api"] = []ci.ChangeRequest{
		changeRequest(1, "org/api", "org/api", "aaa111", "feature", "main"),
	}

	_, err := FindMatching(context.Background(), source, "org/api", nil, "aaa111")
	assert.ErrorIs(t, err, ErrNoMatchingChangeRequest)

	open, _ := source.calls()
	assert.Equal(t, 0, open)
}

func TestFindMatching_ProviderError(t *testing.T) {
	source := newMockSource()
	source.failRepo["org/api"] = assert.AnError

	_, err := FindMatching(context.Background(), source, "org/api", []string{"main"}, "aaa111")
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, ci.IsProviderError(err))
}

func TestForkFor(t *testing.T) {
	same := changeRequest(1, "org/api", "org/api", "abc123", "feature", "main")
	_, ok := ForkFor(same, "org/api").Get()
	assert.False(t, ok)

	fork := changeRequest(2, "alice/api", "org/api", "abc123", "fix", "main")
	origin, ok := ForkFor(fork, "org/api").Get()
	require.True(t, ok)
	assert.Equal(t, "abc123", origin.SHA)
	assert.Equal(t, "fix", origin.Branch)
	assert.Equal(t, "https://git.example.com/alice/api.git", origin.CloneURL)
}
