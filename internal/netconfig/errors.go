package netconfig

import "errors"

// Sentinel errors for the org configuration store.
var (
	// ErrConfigNotFound indicates no stored configuration exists for the
	// organisation.
	ErrConfigNotFound = errors.New("netconfig: configuration not found")

	// ErrInvalidOrgID indicates an empty or malformed organisation ID.
	ErrInvalidOrgID = errors.New("netconfig: invalid organisation id")
)
