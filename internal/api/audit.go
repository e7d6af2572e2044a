package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
)

// handleListAudit returns the organisation's audit trail, newest first.
//
// Query parameters:
//   - action: filter by action (provisioning_ensure, provision, config_apply, archive, job_retry, orphan_enqueue)
//   - entity_type: filter by entity type (device, gateway, job, organisation)
//   - entity_id: filter by specific entity ID
//   - limit, offset: pagination
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   r.URL.Query().Get("entity_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), orgID, filter)
	if err != nil {
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// recordAudit writes an audit entry for a completed mutation. Auditing
// never fails the request; a write error is logged and dropped.
func (s *Server) recordAudit(r *http.Request, orgID, action, entityType, entityID string, details map[string]any) {
	entry := &audit.AuditLog{
		OrgID:      orgID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userFromContext(r.Context()),
		Details:    details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("recording audit entry",
			"action", action,
			"org_id", orgID,
			"error", err,
		)
	}
}
