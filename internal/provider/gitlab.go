package provider

import (
	"context"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"ciwarden/internal/ci"
)

const gitlabPerPage = 100

// GitLab talks to gitlab.com or a self-managed instance.
type GitLab struct {
	client *gitlab.Client
}

// NewGitLab creates a GitLab source. A non-empty cred.BaseURL selects a
// self-managed instance.
func NewGitLab(cred ci.Credential, httpClient *http.Client) (*GitLab, error) {
	opts := []gitlab.ClientOptionFunc{gitlab.WithHTTPClient(httpClient)}
	if cred.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(cred.BaseURL))
	}
	client, err := gitlab.NewClient(cred.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}
	return &GitLab{client: client}, nil
}

func (g *GitLab) Type() ci.CredentialType {
	return ci.CredentialTypeGitLab
}

// gitlabProject is the subset of a project a change request needs.
type gitlabProject struct {
	fullName string
	cloneURL string
}

// OpenChangeRequests lists opened merge requests per target branch.
func (g *GitLab) OpenChangeRequests(ctx context.Context, repoFullName string, branches []string) ([]ci.ChangeRequest, error) {
	if len(branches) == 0 {
		return nil, nil
	}

	projects := make(map[string]gitlabProject)
	lookup := func(pid interface{}) (gitlabProject, error) {
		key := fmt.Sprint(pid)
		if p, ok := projects[key]; ok {
			return p, nil
		}
		project, _, err := g.client.Projects.GetProject(pid, nil, gitlab.WithContext(ctx))
		if err != nil {
			return gitlabProject{}, ci.NewProviderError("get project", repoFullName, err)
		}
		p := gitlabProject{fullName: project.PathWithNamespace, cloneURL: project.HTTPURLToRepo}
		projects[key] = p
		return p, nil
	}

	target, err := lookup(repoFullName)
	if err != nil {
		return nil, err
	}

	var requests []ci.ChangeRequest
	for _, branch := range branches {
		opts := &gitlab.ListProjectMergeRequestsOptions{
			ListOptions:  gitlab.ListOptions{PerPage: gitlabPerPage},
			State:        gitlab.Ptr("opened"),
			TargetBranch: gitlab.Ptr(branch),
		}
		for {
			mrs, resp, err := g.client.MergeRequests.ListProjectMergeRequests(repoFullName, opts, gitlab.WithContext(ctx))
			if err != nil {
				return nil, ci.NewProviderError("list merge requests", repoFullName, err)
			}
			for _, mr := range mrs {
				source := target
				if mr.SourceProjectID != mr.TargetProjectID {
					source, err = lookup(mr.SourceProjectID)
					if err != nil {
						return nil, err
					}
				}
				requests = append(requests, ci.ChangeRequest{
					Number:       int(mr.IID),
					SourceRepo:   source.fullName,
					TargetRepo:   target.fullName,
					HeadSHA:      mr.SHA,
					Branch:       mr.SourceBranch,
					TargetBranch: mr.TargetBranch,
					CloneURL:     source.cloneURL,
				})
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}
	return requests, nil
}

func (g *GitLab) CommitStatuses(ctx context.Context, repoFullName, sha string) ([]ci.CommitStatus, error) {
	var statuses []ci.CommitStatus
	opts := &gitlab.GetCommitStatusesOptions{
		ListOptions: gitlab.ListOptions{PerPage: gitlabPerPage},
		All:         gitlab.Ptr(true),
	}
	for {
		page, resp, err := g.client.Commits.GetCommitStatuses(repoFullName, sha, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, ci.NewProviderError("list statuses", repoFullName, err)
		}
		for _, s := range page {
			statuses = append(statuses, ci.CommitStatus{
				State:       gitlabState(s.Status),
				Context:     s.Name,
				Description: s.Description,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return statuses, nil
}

func (g *GitLab) SetCommitStatus(ctx context.Context, repoFullName, sha string, status ci.CommitStatus) error {
	opts := &gitlab.SetCommitStatusOptions{
		State:       gitlabBuildState(status.State),
		Name:        gitlab.Ptr(status.Context),
		Description: gitlab.Ptr(status.Description),
	}
	if _, _, err := g.client.Commits.SetCommitStatus(repoFullName, sha, opts, gitlab.WithContext(ctx)); err != nil {
		return ci.NewProviderError("set status", repoFullName, err)
	}
	return nil
}

func gitlabState(s string) ci.CommitState {
	switch s {
	case "success":
		return ci.CommitStateSuccess
	case "failed":
		return ci.CommitStateFailure
	case "canceled", "skipped":
		return ci.CommitStateError
	default:
		// created, pending, running, manual and friends are all unfinished.
		return ci.CommitStatePending
	}
}

func gitlabBuildState(s ci.CommitState) gitlab.BuildStateValue {
	switch s {
	case ci.CommitStatePending:
		return gitlab.Pending
	case ci.CommitStateSuccess:
		return gitlab.Success
	case ci.CommitStateError:
		return gitlab.Canceled
	default:
		return gitlab.Failed
	}
}
