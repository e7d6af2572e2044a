package provisioning

import (
	"errors"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// Sentinel errors for the coordinator.
var (
	// ErrNotConfigured indicates the organisation has no stored registry
	// configuration, so there is nothing to ensure.
	ErrNotConfigured = errors.New("provisioning: organisation registry configuration missing")

	// ErrStepFailed indicates a coordinator step failed for a
	// non-fatal, non-classified reason. The provisioning log carries
	// the detail.
	ErrStepFailed = errors.New("provisioning: step failed")
)

// errorCategory buckets a registry error for the provisioning log.
func errorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case registry.IsAuth(err):
		return "auth"
	case registry.IsConflict(err):
		return "conflict"
	case registry.IsNotFound(err):
		return "not_found"
	case registry.IsTransient(err):
		return "transient"
	default:
		return "api"
	}
}
