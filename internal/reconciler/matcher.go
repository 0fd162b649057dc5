package reconciler

import (
	"context"
	"fmt"
	"strings"

	"ciwarden/internal/build"
	"ciwarden/internal/ci"
)

// FindMatching returns the open change request of repoFullName, targeting
// one of branches, whose head is sha. An empty branch set queries nothing and
// matches nothing.
func FindMatching(ctx context.Context, client ci.CommitStatusSource, repoFullName string, branches []string, sha string) (ci.ChangeRequest, error) {
	if len(branches) == 0 {
		return ci.ChangeRequest{}, ErrNoMatchingChangeRequest
	}

	requests, err := client.OpenChangeRequests(ctx, repoFullName, branches)
	if err != nil {
		return ci.ChangeRequest{}, err
	}

	var matches []ci.ChangeRequest
	for _, cr := range requests {
		if cr.HeadSHA == sha {
			matches = append(matches, cr)
		}
	}

	switch len(matches) {
	case 0:
		return ci.ChangeRequest{}, ErrNoMatchingChangeRequest
	case 1:
		return matches[0], nil
	default:
		numbers := make([]string, len(matches))
		for i, cr := range matches {
			numbers[i] = fmt.Sprintf("#%d", cr.Number)
		}
		return ci.ChangeRequest{}, fmt.Errorf("%w: %s@%s is the head of %s",
			ErrAmbiguousChangeRequest, repoFullName, sha, strings.Join(numbers, ", "))
	}
}

// ForkFor returns the fork origin a build of cr needs. It is absent unless
// the request comes from a repository other than repoFullName.
func ForkFor(cr ci.ChangeRequest, repoFullName string) build.Fork {
	if !cr.IsFork(repoFullName) {
		return build.NoFork()
	}
	return build.ForkOf(build.ForkOriginFrom(cr))
}
