package provider

import (
	"context"
	"fmt"
	"net/http"

	"code.gitea.io/sdk/gitea"

	"ciwarden/internal/ci"
)

const giteaPageSize = 50

// Gitea talks to a Gitea or Forgejo instance. cred.BaseURL is required.
type Gitea struct {
	client *gitea.Client
}

func NewGitea(cred ci.Credential, httpClient *http.Client) (*Gitea, error) {
	if cred.BaseURL == "" {
		return nil, fmt.Errorf("credential %s: gitea requires a base URL", cred)
	}
	opts := []gitea.ClientOption{
		gitea.SetHTTPClient(httpClient),
		// Skip the version probe; the endpoints used here predate every
		// supported release.
		gitea.SetGiteaVersion(""),
	}
	if cred.Token != "" {
		opts = append(opts, gitea.SetToken(cred.Token))
	}
	client, err := gitea.NewClient(cred.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Gitea client: %w", err)
	}
	return &Gitea{client: client}, nil
}

func (g *Gitea) Type() ci.CredentialType {
	return ci.CredentialTypeGitea
}

// OpenChangeRequests lists open pull requests and keeps those targeting one
// of branches. Gitea has no server-side base branch filter.
func (g *Gitea) OpenChangeRequests(ctx context.Context, repoFullName string, branches []string) ([]ci.ChangeRequest, error) {
	if len(branches) == 0 {
		return nil, nil
	}
	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}
	wanted := branchSet(branches)

	var requests []ci.ChangeRequest
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pulls, _, err := g.client.ListRepoPullRequests(owner, name, gitea.ListPullRequestsOptions{
			ListOptions: gitea.ListOptions{Page: page, PageSize: giteaPageSize},
			State:       gitea.StateOpen,
		})
		if err != nil {
			return nil, ci.NewProviderError("list pull requests", repoFullName, err)
		}
		for _, pr := range pulls {
			if pr.Base == nil || pr.Head == nil || pr.Head.Repository == nil {
				continue
			}
			if _, ok := wanted[pr.Base.Ref]; !ok {
				continue
			}
			target := repoFullName
			if pr.Base.Repository != nil {
				target = pr.Base.Repository.FullName
			}
			requests = append(requests, ci.ChangeRequest{
				Number:       int(pr.Index),
				SourceRepo:   pr.Head.Repository.FullName,
				TargetRepo:   target,
				HeadSHA:      pr.Head.Sha,
				Branch:       pr.Head.Ref,
				TargetBranch: pr.Base.Ref,
				CloneURL:     pr.Head.Repository.CloneURL,
			})
		}
		if len(pulls) < giteaPageSize {
			break
		}
	}
	return requests, nil
}

func (g *Gitea) CommitStatuses(ctx context.Context, repoFullName, sha string) ([]ci.CommitStatus, error) {
	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	var statuses []ci.CommitStatus
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, _, err := g.client.ListStatuses(owner, name, sha, gitea.ListStatusesOption{
			ListOptions: gitea.ListOptions{Page: page, PageSize: giteaPageSize},
		})
		if err != nil {
			return nil, ci.NewProviderError("list statuses", repoFullName, err)
		}
		for _, s := range items {
			statuses = append(statuses, ci.CommitStatus{
				State:       giteaState(s.State),
				Context:     s.Context,
				Description: s.Description,
			})
		}
		if len(items) < giteaPageSize {
			break
		}
	}
	return statuses, nil
}

func (g *Gitea) SetCommitStatus(ctx context.Context, repoFullName, sha string, status ci.CommitStatus) error {
	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err = g.client.CreateStatus(owner, name, sha, gitea.CreateStatusOption{
		State:       gitea.StatusState(status.State),
		Context:     status.Context,
		Description: status.Description,
	})
	if err != nil {
		return ci.NewProviderError("create status", repoFullName, err)
	}
	return nil
}

func giteaState(s gitea.StatusState) ci.CommitState {
	switch s {
	case gitea.StatusPending:
		return ci.CommitStatePending
	case gitea.StatusSuccess:
		return ci.CommitStateSuccess
	case gitea.StatusFailure:
		return ci.CommitStateFailure
	default:
		return ci.CommitStateError
	}
}
