package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// handleEnsureProvisioning drives the organisation's registry resources to
// their desired state: application present, ingest webhook configured.
//
// The operation is idempotent; repeating it after a partial failure resumes
// from the first incomplete step.
func (s *Server) handleEnsureProvisioning(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	result, err := s.coordinator.EnsureApplication(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, provisioning.ErrNotConfigured) {
			writeError(w, http.StatusConflict, ErrCodeNotConfigured,
				"organisation has no registry configuration or provisioning is disabled")
			return
		}
		s.writeRegistryError(w, err)
		return
	}

	s.recordAudit(r, orgID, audit.ActionEnsure, "organisation", orgID, map[string]any{
		"application_id": result.ApplicationID,
		"completed":      result.Completed,
	})
	writeJSON(w, http.StatusOK, result)
}

// defaultLogLimit bounds GET /provisioning/log when no limit is given.
const defaultLogLimit = 50

// handleProvisioningLog returns recent provisioning and deprovisioning
// step records for the organisation, newest first.
func (s *Server) handleProvisioningLog(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.provisionLog.ListByOrg(r.Context(), orgID, limit)
	if err != nil {
		writeInternalError(w, "failed to list provisioning log")
		return
	}
	if entries == nil {
		entries = []*provisioning.LogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// writeRegistryError maps a registry call failure to an HTTP response.
// Credential failures carry the operator hint; everything else surfaces
// as a gateway error since the fault lies upstream.
func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	var authErr *registry.AuthError
	if errors.As(err, &authErr) {
		writeJSON(w, http.StatusBadGateway, Error{
			Status:  http.StatusBadGateway,
			Code:    ErrCodeRegistryAuth,
			Message: authErr.Error(),
			Hint:    authErr.Hint,
		})
		return
	}
	if registry.IsTransient(err) {
		writeError(w, http.StatusBadGateway, ErrCodeRegistryError, err.Error())
		return
	}
	if errors.Is(err, provisioning.ErrStepFailed) {
		writeError(w, http.StatusBadGateway, ErrCodeRegistryError, err.Error())
		return
	}
	writeInternalError(w, "provisioning failed")
}
