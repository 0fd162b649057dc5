package ci

import (
	"errors"
	"fmt"
)

// ErrUnsupportedCredentialType is returned when no provider integration
// exists for a credential type.
var ErrUnsupportedCredentialType = errors.New("unsupported credential type")

// ProviderError wraps a failed hosting provider query.
type ProviderError struct {
	Op   string
	Repo string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Op, e.Repo, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err unless it is nil.
func NewProviderError(op, repo string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Op: op, Repo: repo, Err: err}
}

// IsProviderError reports whether err came from a provider query.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
