package reconciler

import "errors"

var (
	// ErrNoMatchingChangeRequest is returned when no open change request has
	// the requested head sha.
	ErrNoMatchingChangeRequest = errors.New("no matching change request")

	// ErrAmbiguousChangeRequest is returned when more than one open change
	// request has the requested head sha.
	ErrAmbiguousChangeRequest = errors.New("ambiguous change request")
)
