package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"ciwarden/internal/ci"
	"ciwarden/pkg/logging"
)

const githubPerPage = 100

// GitHub talks to github.com or a GitHub Enterprise instance.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates a GitHub source. A non-empty cred.BaseURL selects a
// GitHub Enterprise API root.
func NewGitHub(cred ci.Credential, httpClient *http.Client) (*GitHub, error) {
	hc := httpClient
	if cred.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token}))
	}

	client := github.NewClient(hc)
	if cred.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cred.BaseURL, cred.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cred.BaseURL, err)
		}
	}
	return &GitHub{client: client}, nil
}

func (g *GitHub) Type() ci.CredentialType {
	return ci.CredentialTypeGitHub
}

// OpenChangeRequests lists open pull requests per base branch.
func (g *GitHub) OpenChangeRequests(ctx context.Context, repoFullName string, branches []string) ([]ci.ChangeRequest, error) {
	if len(branches) == 0 {
		return nil, nil
	}
	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	var requests []ci.ChangeRequest
	for _, branch := range branches {
		opts := &github.PullRequestListOptions{
			State:       "open",
			Base:        branch,
			ListOptions: github.ListOptions{PerPage: githubPerPage},
		}
		for {
			pulls, resp, err := g.client.PullRequests.List(ctx, owner, name, opts)
			if err != nil {
				return nil, ci.NewProviderError("list pull requests", repoFullName, err)
			}
			for _, pr := range pulls {
				cr, ok := githubChangeRequest(repoFullName, pr)
				if !ok {
					logging.Debug("Provider", "Ignoring pull request #%d of %s without a head repository", pr.GetNumber(), repoFullName)
					continue
				}
				requests = append(requests, cr)
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}
	return requests, nil
}

func githubChangeRequest(repoFullName string, pr *github.PullRequest) (ci.ChangeRequest, bool) {
	head := pr.GetHead()
	if head.GetRepo() == nil {
		return ci.ChangeRequest{}, false
	}
	target := pr.GetBase().GetRepo().GetFullName()
	if target == "" {
		target = repoFullName
	}
	return ci.ChangeRequest{
		Number:       pr.GetNumber(),
		SourceRepo:   head.GetRepo().GetFullName(),
		TargetRepo:   target,
		HeadSHA:      head.GetSHA(),
		Branch:       head.GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		CloneURL:     head.GetRepo().GetCloneURL(),
	}, true
}

func (g *GitHub) CommitStatuses(ctx context.Context, repoFullName, sha string) ([]ci.CommitStatus, error) {
	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	var statuses []ci.CommitStatus
	opts := &github.ListOptions{PerPage: githubPerPage}
	for {
		page, resp, err := g.client.Repositories.ListStatuses(ctx, owner, name, sha, opts)
		if err != nil {
			return nil, ci.NewProviderError("list statuses", repoFullName, err)
		}
		for _, s := range page {
			statuses = append(statuses, ci.CommitStatus{
				State:       githubState(s.GetState()),
				Context:     s.GetContext(),
				Description: s.GetDescription(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return statuses, nil
}

func (g *GitHub) SetCommitStatus(ctx context.Context, repoFullName, sha string, status ci.CommitStatus) error {
	owner, name, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	repoStatus := &github.RepoStatus{
		State:       github.Ptr(string(status.State)),
		Context:     github.Ptr(status.Context),
		Description: github.Ptr(status.Description),
	}
	if _, _, err := g.client.Repositories.CreateStatus(ctx, owner, name, sha, repoStatus); err != nil {
		return ci.NewProviderError("create status", repoFullName, err)
	}
	return nil
}

func githubState(s string) ci.CommitState {
	switch ci.CommitState(s) {
	case ci.CommitStatePending, ci.CommitStateSuccess, ci.CommitStateFailure:
		return ci.CommitState(s)
	default:
		return ci.CommitStateError
	}
}
