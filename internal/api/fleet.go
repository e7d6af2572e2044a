package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
)

// archiveResponse is the response body for the archive endpoints. Job is
// null when the entity was never provisioned and no cleanup is needed.
type archiveResponse struct {
	Status string           `json:"status"`
	Job    *deprovision.Job `json:"job"`
}

// handleArchiveDevice archives a device and, when it was provisioned,
// queues the registry cleanup job.
func (s *Server) handleArchiveDevice(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	job, err := s.fleet.ArchiveDevice(r.Context(), orgID, id)
	if err != nil {
		if errors.Is(err, fleet.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		if errors.Is(err, fleet.ErrAlreadyArchived) {
			writeConflict(w, "device is already archived")
			return
		}
		writeInternalError(w, "failed to archive device")
		return
	}

	details := map[string]any{}
	if job != nil {
		details["job_id"] = job.ID
	}
	s.recordAudit(r, orgID, audit.ActionArchive, "device", id, details)
	writeJSON(w, http.StatusOK, archiveResponse{Status: fleet.StatusArchived, Job: job})
}

// handleArchiveGateway archives a gateway and, when it was provisioned,
// queues the registry cleanup job.
func (s *Server) handleArchiveGateway(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	job, err := s.fleet.ArchiveGateway(r.Context(), orgID, id)
	if err != nil {
		if errors.Is(err, fleet.ErrGatewayNotFound) {
			writeNotFound(w, "gateway not found")
			return
		}
		if errors.Is(err, fleet.ErrAlreadyArchived) {
			writeConflict(w, "gateway is already archived")
			return
		}
		writeInternalError(w, "failed to archive gateway")
		return
	}

	details := map[string]any{}
	if job != nil {
		details["job_id"] = job.ID
	}
	s.recordAudit(r, orgID, audit.ActionArchive, "gateway", id, details)
	writeJSON(w, http.StatusOK, archiveResponse{Status: fleet.StatusArchived, Job: job})
}
