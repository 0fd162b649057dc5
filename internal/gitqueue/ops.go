package gitqueue

import (
	"context"
	"errors"
	"fmt"
	"os"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// The helpers below build Operations; none of them touch the filesystem until
// the queue runs them.

// TokenAuth returns HTTP basic auth carrying a provider token, or nil for
// anonymous access.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}
}

// Clone clones url into dir. An existing repository at dir is left untouched.
func Clone(url, dir string, auth transport.AuthMethod) Operation {
	return func(ctx context.Context) error {
		if _, err := git.PlainOpen(dir); err == nil {
			return nil
		} else if !errors.Is(err, git.ErrRepositoryNotExists) {
			return fmt.Errorf("open %s: %w", dir, err)
		}

		_, statErr := os.Stat(dir)
		created := os.IsNotExist(statErr)

		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:  url,
			Auth: auth,
		})
		if err != nil {
			if created {
				_ = os.RemoveAll(dir)
			}
			return fmt.Errorf("clone %s: %w", url, err)
		}
		return nil
	}
}

// Fetch fetches refSpecs from url into the repository at dir.
func Fetch(dir, url string, refSpecs []string, auth transport.AuthMethod) Operation {
	return func(ctx context.Context) error {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return fmt.Errorf("open %s: %w", dir, err)
		}

		specs := make([]config.RefSpec, 0, len(refSpecs))
		for _, s := range refSpecs {
			spec := config.RefSpec(s)
			if err := spec.Validate(); err != nil {
				return fmt.Errorf("invalid refspec %q: %w", s, err)
			}
			specs = append(specs, spec)
		}

		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteURL: url,
			RefSpecs:  specs,
			Auth:      auth,
			Force:     true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		return nil
	}
}

// ForkRefSpec maps a branch of a fork onto a local remote-tracking ref that
// cannot collide with the canonical remote's branches.
func ForkRefSpec(branch string) string {
	return fmt.Sprintf("+refs/heads/%s:refs/remotes/fork/%s", branch, branch)
}

// Checkout force-checks out rev (a full or abbreviated sha, or any revision
// go-git can resolve) in the repository at dir, detaching HEAD.
func Checkout(dir, rev string) Operation {
	return func(ctx context.Context) error {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return fmt.Errorf("open %s: %w", dir, err)
		}

		hash, err := repo.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", rev, err)
		}

		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("worktree %s: %w", dir, err)
		}

		if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
			return fmt.Errorf("checkout %s: %w", rev, err)
		}
		return nil
	}
}

// Sequence runs ops in order and stops at the first error. It is submitted as
// a single queue item so that the steps of one workspace preparation are not
// interleaved with other work.
func Sequence(ops ...Operation) Operation {
	return func(ctx context.Context) error {
		for _, op := range ops {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := op(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
