package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
)

// handleDeviceEligibility returns the provisioning verdict for a device.
//
// A denied verdict is a successful response; the reason explains exactly
// which prerequisite is missing so the dashboard can render it verbatim.
func (s *Server) handleDeviceEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	device, err := s.devices.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, fleet.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	cfg, err := s.orgConfig(ctx, orgID)
	if err != nil {
		writeInternalError(w, "failed to load registry configuration")
		return
	}

	verdict := provisioning.CanProvisionDevice(device, cfg, permissionsFromContext(ctx))
	writeJSON(w, http.StatusOK, verdict)
}

// handleGatewayEligibility returns the provisioning verdict for a gateway.
func (s *Server) handleGatewayEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	gateway, err := s.gateways.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, fleet.ErrGatewayNotFound) {
			writeNotFound(w, "gateway not found")
			return
		}
		writeInternalError(w, "failed to get gateway")
		return
	}

	cfg, err := s.orgConfig(ctx, orgID)
	if err != nil {
		writeInternalError(w, "failed to load registry configuration")
		return
	}

	verdict := provisioning.CanProvisionGateway(gateway, cfg, permissionsFromContext(ctx))
	writeJSON(w, http.StatusOK, verdict)
}

// orgConfig loads the organisation's registry configuration. A missing
// configuration is not an error here; the eligibility checks report it
// as NOT_CONFIGURED.
func (s *Server) orgConfig(ctx context.Context, orgID string) (*netconfig.OrgConfig, error) {
	cfg, err := s.configs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, netconfig.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}
