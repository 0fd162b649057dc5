package provider

import (
	"fmt"
	"net/http"

	"ciwarden/internal/ci"
)

// New returns the CommitStatusSource for a credential. httpClient may be nil,
// in which case a default retrying client is used.
func New(cred ci.Credential, httpClient *http.Client) (ci.CommitStatusSource, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient(HTTPOptions{})
	}

	switch cred.Type {
	case ci.CredentialTypeGitHub:
		return NewGitHub(cred, httpClient)
	case ci.CredentialTypeGitLab:
		return NewGitLab(cred, httpClient)
	case ci.CredentialTypeGitea:
		return NewGitea(cred, httpClient)
	default:
		return nil, fmt.Errorf("credential %s: %w", cred, ci.ErrUnsupportedCredentialType)
	}
}

// Supported reports whether New can build a source for t.
func Supported(t ci.CredentialType) bool {
	switch t {
	case ci.CredentialTypeGitHub, ci.CredentialTypeGitLab, ci.CredentialTypeGitea:
		return true
	default:
		return false
	}
}
