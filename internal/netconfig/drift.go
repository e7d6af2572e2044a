package netconfig

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// ComputeDriftHash returns a deterministic hash over the fields that
// matter for drift detection. It is an equality oracle, not a security
// control, so a fast non-cryptographic hash is deliberate.
func ComputeDriftHash(in DriftInput) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%t",
		strings.TrimSpace(strings.ToLower(in.Cluster)),
		strings.TrimSpace(in.ApplicationID),
		strings.TrimSpace(in.APIKeyLast4),
		in.Enabled,
	)
	return fmt.Sprintf("%016x", h.Sum64())
}
