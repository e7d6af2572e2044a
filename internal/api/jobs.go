package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
)

// handleListJobs returns all deprovision jobs for the organisation,
// newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	jobs, err := s.jobs.ListByOrg(r.Context(), orgID)
	if err != nil {
		writeInternalError(w, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*deprovision.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleJobStats returns the per-status job counts the dashboard polls
// to surface cleanup work that needs attention.
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	stats, err := s.jobs.Stats(r.Context(), orgID)
	if err != nil {
		writeInternalError(w, "failed to compute job stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRetryJob resets a failed or blocked job so the worker picks it
// up again with a fresh attempt budget.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, deprovision.ErrJobNotFound) {
			writeNotFound(w, "job not found")
			return
		}
		writeInternalError(w, "failed to get job")
		return
	}
	// Jobs are organisation scoped; do not leak other tenants' job IDs.
	if job.OrgID != orgID {
		writeNotFound(w, "job not found")
		return
	}
	if job.Status != deprovision.StatusFailed && job.Status != deprovision.StatusBlocked {
		writeConflict(w, "job is not in a retryable state")
		return
	}

	if err := s.jobs.Reset(ctx, id); err != nil {
		writeInternalError(w, "failed to reset job")
		return
	}

	job, err = s.jobs.GetByID(ctx, id)
	if err != nil {
		writeInternalError(w, "failed to get job")
		return
	}

	s.recordAudit(r, orgID, audit.ActionJobRetry, "job", id, nil)
	writeJSON(w, http.StatusOK, job)
}
