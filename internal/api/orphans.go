package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
)

// handleScanOrphans lists registry devices that internal tracking does
// not know about. The scan is read-only; cleanup is a separate call.
func (s *Server) handleScanOrphans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")

	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeRegistryError, "orphan reconciliation is not available")
		return
	}

	appID, ok := s.applicationID(w, r, orgID)
	if !ok {
		return
	}

	orphans, err := s.reconciler.FindOrphans(ctx, orgID, appID)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	if orphans == nil {
		orphans = []deprovision.Orphan{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orphans": orphans, "count": len(orphans)})
}

// handleEnqueueOrphans scans for orphans and queues a cleanup job for
// each one found. This is the authorisation boundary: nothing is
// removed from the registry until an operator calls this.
func (s *Server) handleEnqueueOrphans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")

	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeRegistryError, "orphan reconciliation is not available")
		return
	}

	appID, ok := s.applicationID(w, r, orgID)
	if !ok {
		return
	}

	orphans, err := s.reconciler.FindOrphans(ctx, orgID, appID)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}

	jobs, err := s.reconciler.EnqueueOrphans(ctx, orgID, appID, orphans)
	if err != nil {
		writeInternalError(w, "failed to enqueue orphan cleanup")
		return
	}
	if jobs == nil {
		jobs = []*deprovision.Job{}
	}

	s.recordAudit(r, orgID, audit.ActionOrphanEnqueue, "organisation", orgID, map[string]any{
		"application_id": appID,
		"count":          len(jobs),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// applicationID resolves the organisation's registry application ID,
// writing the error response itself when resolution fails.
func (s *Server) applicationID(w http.ResponseWriter, r *http.Request, orgID string) (string, bool) {
	cfg, err := s.orgConfig(r.Context(), orgID)
	if err != nil {
		writeInternalError(w, "failed to load registry configuration")
		return "", false
	}
	if cfg == nil || !cfg.Enabled {
		writeError(w, http.StatusConflict, ErrCodeNotConfigured,
			"organisation has no registry configuration or provisioning is disabled")
		return "", false
	}
	if cfg.ApplicationID != nil && *cfg.ApplicationID != "" {
		return *cfg.ApplicationID, true
	}
	return provisioning.ApplicationIDForOrg(orgID), true
}
