package ci

import "context"

// CommitStatusSource is the hosting provider API surface the reconciliation
// core reads from.
type CommitStatusSource interface {
	// Type reports the credential type this source talks to.
	Type() CredentialType

	// OpenChangeRequests lists the open change requests of repoFullName whose
	// target branch is one of branches.
	OpenChangeRequests(ctx context.Context, repoFullName string, branches []string) ([]ChangeRequest, error)

	// CommitStatuses lists every status reported for sha.
	CommitStatuses(ctx context.Context, repoFullName, sha string) ([]CommitStatus, error)

	// SetCommitStatus reports a status for sha.
	SetCommitStatus(ctx context.Context, repoFullName, sha string, status CommitStatus) error
}

// BuildStatusStore is the datastore recording what builds were started.
type BuildStatusStore interface {
	// PendingSHAs returns the shas of projectID whose builds were started but
	// never finished.
	PendingSHAs(ctx context.Context, projectID string) ([]string, error)
}
