package deprovision

import "errors"

// Sentinel errors for the job queue.
var (
	// ErrJobNotFound indicates the job ID does not exist.
	ErrJobNotFound = errors.New("deprovision: job not found")

	// ErrNoClaimableJob indicates no PENDING or due RETRYING job was
	// available to claim.
	ErrNoClaimableJob = errors.New("deprovision: no claimable job")

	// ErrInvalidJob indicates enqueue parameters are incomplete.
	ErrInvalidJob = errors.New("deprovision: invalid job parameters")
)
