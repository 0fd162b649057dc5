package ci

import (
	"fmt"
	"sort"
)

// CredentialType names the hosting provider a credential authenticates against.
type CredentialType string

const (
	CredentialTypeGitHub    CredentialType = "github"
	CredentialTypeGitLab    CredentialType = "gitlab"
	CredentialTypeGitea     CredentialType = "gitea"
	CredentialTypeBitbucket CredentialType = "bitbucket"
)

// Credential identifies an account on a hosting provider.
type Credential struct {
	// Name is the configured identifier projects refer to.
	Name string

	Type CredentialType

	// BaseURL is the API root for self-hosted instances. Empty means the
	// provider's public service.
	BaseURL string

	// Token is resolved from the environment at load time and never persisted.
	Token string
}

// String omits the token.
func (c Credential) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.Type)
}

// JobTrigger is one of CommitTrigger, PullRequestTrigger or ManualTrigger.
type JobTrigger interface {
	Kind() TriggerKind
	isJobTrigger()
}

// TriggerKind is the configuration tag of a JobTrigger.
type TriggerKind string

const (
	TriggerKindCommit      TriggerKind = "commit"
	TriggerKindPullRequest TriggerKind = "pull-request"
	TriggerKindManual      TriggerKind = "manual"
)

// CommitTrigger builds every commit pushed to Branch.
type CommitTrigger struct {
	Branch string
}

// PullRequestTrigger builds change requests that target Branch.
type PullRequestTrigger struct {
	Branch string
}

// ManualTrigger only builds on explicit request.
type ManualTrigger struct{}

func (CommitTrigger) Kind() TriggerKind      { return TriggerKindCommit }
func (PullRequestTrigger) Kind() TriggerKind { return TriggerKindPullRequest }
func (ManualTrigger) Kind() TriggerKind      { return TriggerKindManual }

func (CommitTrigger) isJobTrigger()      {}
func (PullRequestTrigger) isJobTrigger() {}
func (ManualTrigger) isJobTrigger()      {}

// NewJobTrigger builds the variant for a configuration tag.
func NewJobTrigger(kind TriggerKind, branch string) (JobTrigger, error) {
	switch kind {
	case TriggerKindCommit:
		if branch == "" {
			return nil, fmt.Errorf("%s trigger requires a branch", kind)
		}
		return CommitTrigger{Branch: branch}, nil
	case TriggerKindPullRequest:
		if branch == "" {
			return nil, fmt.Errorf("%s trigger requires a branch", kind)
		}
		return PullRequestTrigger{Branch: branch}, nil
	case TriggerKindManual:
		return ManualTrigger{}, nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", kind)
	}
}

// Project is a configured repository together with its triggers.
type Project struct {
	// ID is opaque; it only has to be unique within a configuration.
	ID string

	// RepoFullName is the provider's owner/name path of the canonical repository.
	RepoFullName string

	// CloneURL is the canonical repository's clone address.
	CloneURL string

	// Credential is the name of the credential used to reach the provider.
	Credential string

	// RequiredCredentialType is the provider type the project lives on.
	RequiredCredentialType CredentialType

	Triggers []JobTrigger
}

// CommitBranches returns the sorted, de-duplicated branches of the project's
// commit triggers. Other trigger kinds do not contribute.
func (p Project) CommitBranches() []string {
	seen := make(map[string]bool)
	var branches []string
	for _, t := range p.Triggers {
		switch trigger := t.(type) {
		case CommitTrigger:
			if !seen[trigger.Branch] {
				seen[trigger.Branch] = true
				branches = append(branches, trigger.Branch)
			}
		case PullRequestTrigger, ManualTrigger:
		default:
			panic(fmt.Sprintf("unhandled job trigger %T", t))
		}
	}
	sort.Strings(branches)
	return branches
}

// ChangeRequest is an open pull/merge request as reported by the provider.
type ChangeRequest struct {
	Number int

	// SourceRepo is the full name of the repository the head commits live in.
	SourceRepo string

	// TargetRepo is the full name of the repository the request merges into.
	TargetRepo string

	// HeadSHA is the current head commit of the request.
	HeadSHA string

	// Branch is the source branch name.
	Branch string

	// TargetBranch is the branch the request merges into.
	TargetBranch string

	// CloneURL is the clone address of SourceRepo.
	CloneURL string
}

// IsFork reports whether the request's commits come from a repository other
// than repoFullName.
func (cr ChangeRequest) IsFork(repoFullName string) bool {
	return cr.SourceRepo != repoFullName
}

// CommitState is the provider-recorded state of a commit status.
type CommitState string

const (
	CommitStatePending CommitState = "pending"
	CommitStateSuccess CommitState = "success"
	CommitStateFailure CommitState = "failure"
	CommitStateError   CommitState = "error"
)

// CommitStatus is one status attached to a commit sha.
type CommitStatus struct {
	State       CommitState
	Context     string
	Description string
}

// BuildKey identifies a build execution. At most one live execution exists
// per key.
type BuildKey struct {
	ProjectID string
	SHA       string
}

func (k BuildKey) String() string {
	return k.ProjectID + "@" + k.SHA
}
