package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/orgs/{orgID}", func(r chi.Router) {
				// Eligibility verdicts
				r.Get("/eligibility/devices/{id}", s.handleDeviceEligibility)
				r.Get("/eligibility/gateways/{id}", s.handleGatewayEligibility)

				// Registry configuration
				r.Get("/config", s.handleGetConfig)
				r.Put("/config", s.handleApplyConfig)

				// Provisioning
				r.Post("/provisioning/ensure", s.handleEnsureProvisioning)
				r.Get("/provisioning/log", s.handleProvisioningLog)
				r.Post("/devices/{id}/provision", s.handleProvisionDevice)
				r.Post("/gateways/{id}/provision", s.handleProvisionGateway)

				// Deprovision jobs
				r.Route("/jobs", func(r chi.Router) {
					r.Get("/", s.handleListJobs)
					r.Get("/stats", s.handleJobStats)
					r.Post("/{id}/retry", s.handleRetryJob)
				})

				// Orphan reconciliation
				r.Get("/orphans", s.handleScanOrphans)
				r.Post("/orphans/enqueue", s.handleEnqueueOrphans)

				// Audit trail
				r.Get("/audit", s.handleListAudit)

				// Fleet lifecycle
				r.Post("/devices/{id}/archive", s.handleArchiveDevice)
				r.Post("/gateways/{id}/archive", s.handleArchiveGateway)
			})
		})
	})

	return r
}
