// Package provider implements ci.CommitStatusSource for the supported hosting
// providers.
//
// Every provider shares one retrying HTTP client built on go-retryablehttp.
// Query failures are returned as *ci.ProviderError so callers can abort the
// current project and continue with the next one.
//
// Supported credential types are github, gitlab and gitea. New returns
// ci.ErrUnsupportedCredentialType for anything else.
package provider
