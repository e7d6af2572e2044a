package api

import "net/http"

// healthResponse is the response body for GET /health.
type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// handleHealth reports process liveness and database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  s.version,
		Database: "ok",
	}
	status := http.StatusOK

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
