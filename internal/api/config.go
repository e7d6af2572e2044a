package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
)

// applyConfigRequest is the request body for PUT /config. The API key is
// accepted here and never echoed back; responses carry only its last
// four characters.
type applyConfigRequest struct {
	Enabled         bool   `json:"enabled"`
	APIKey          string `json:"api_key"`
	ApplicationID   string `json:"application_id"`
	Cluster         string `json:"cluster"`
	CredentialScope string `json:"credential_scope"`
}

// configView is the externally visible shape of a stored configuration.
type configView struct {
	OrgID                 string  `json:"org_id"`
	Enabled               bool    `json:"enabled"`
	HasAPIKey             bool    `json:"has_api_key"`
	APIKeyLast4           string  `json:"api_key_last4,omitempty"`
	ApplicationID         *string `json:"application_id"`
	Cluster               string  `json:"cluster"`
	CredentialScope       string  `json:"credential_scope"`
	GatewayRightsVerified bool    `json:"gateway_rights_verified"`
	ApplicationCreated    bool    `json:"application_created"`
	WebhookConfigured     bool    `json:"webhook_configured"`
}

func viewOf(cfg *netconfig.OrgConfig) *configView {
	if cfg == nil {
		return nil
	}
	return &configView{
		OrgID:                 cfg.OrgID,
		Enabled:               cfg.Enabled,
		HasAPIKey:             cfg.HasAPIKey,
		APIKeyLast4:           cfg.APIKeyLast4,
		ApplicationID:         cfg.ApplicationID,
		Cluster:               cfg.Cluster,
		CredentialScope:       string(cfg.CredentialScope),
		GatewayRightsVerified: cfg.GatewayRightsVerified,
		ApplicationCreated:    cfg.ApplicationCreated,
		WebhookConfigured:     cfg.WebhookConfigured,
	}
}

// handleGetConfig reports the stored configuration and its trust state,
// including whether the current values have drifted from the canonical
// baseline.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	status, err := s.netcfg.Status(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, netconfig.ErrConfigNotFound) {
			writeNotFound(w, "organisation has no registry configuration")
			return
		}
		writeInternalError(w, "failed to load registry configuration")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"config":  viewOf(status.Config),
		"state":   status.State,
		"drifted": status.Drifted,
	})
}

// handleApplyConfig validates a candidate configuration against the
// registry and, when the credentials check out, persists it as the new
// canonical record.
func (s *Server) handleApplyConfig(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req applyConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	scope := netconfig.CredentialScope(req.CredentialScope)
	switch scope {
	case "", netconfig.ScopeOrg, netconfig.ScopeApplication:
	default:
		writeBadRequest(w, "credential_scope must be org_scoped or application_scoped")
		return
	}

	result, err := s.netcfg.Apply(r.Context(), netconfig.ApplyInput{
		OrgID:           orgID,
		Enabled:         req.Enabled,
		APIKey:          req.APIKey,
		ApplicationID:   req.ApplicationID,
		Cluster:         req.Cluster,
		CredentialScope: scope,
	})
	if err != nil {
		if errors.Is(err, netconfig.ErrInvalidOrgID) {
			writeBadRequest(w, "organisation id is required")
			return
		}
		s.writeRegistryError(w, err)
		return
	}

	s.recordAudit(r, orgID, audit.ActionConfigApply, "organisation", orgID, map[string]any{
		"state":   string(result.State),
		"cluster": req.Cluster,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"config":     viewOf(result.Config),
		"state":      result.State,
		"validation": result.Validation,
	})
}
