package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/mqtt"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// provisionDeviceResponse is the response body for device provisioning.
type provisionDeviceResponse struct {
	Status        string `json:"status"`
	RegistryID    string `json:"registry_id"`
	ApplicationID string `json:"application_id"`
}

// provisionGatewayResponse is the response body for gateway provisioning.
// LNSKey carries the freshly minted link key; it is shown exactly once
// and cannot be retrieved from the registry afterwards.
type provisionGatewayResponse struct {
	Status     string           `json:"status"`
	RegistryID string           `json:"registry_id"`
	LNSKey     *registry.APIKey `json:"lns_key,omitempty"`
}

// handleProvisionDevice registers a device on the network registry. The
// eligibility gate runs first; a denied verdict never reaches the
// registry. On success the device record is updated and a lifecycle
// event is published.
func (s *Server) handleProvisionDevice(w http.ResponseWriter, r *http.Request) {
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

	if verdict := provisioning.CanProvisionDevice(device, cfg, permissionsFromContext(ctx)); !verdict.Allowed {
		s.writeNotEligible(w, verdict)
		return
	}

	result, err := s.coordinator.ProvisionDevice(ctx, device)
	if err != nil {
		if errors.Is(err, provisioning.ErrNotConfigured) {
			writeError(w, http.StatusConflict, ErrCodeNotConfigured,
				"organisation has no registry configuration")
			return
		}
		s.writeRegistryError(w, err)
		return
	}

	if err := s.fleet.MarkDeviceProvisioned(ctx, orgID, id, result.RegistryID, result.ApplicationID); err != nil {
		writeInternalError(w, "failed to record provisioned state")
		return
	}

	s.publishLifecycle(mqtt.LifecycleEvent{
		Type:       mqtt.EventProvisioned,
		OrgID:      orgID,
		EntityType: "device",
		EntityEUI:  device.DevEUI,
	})
	s.recordAudit(r, orgID, audit.ActionProvision, "device", id, map[string]any{
		"registry_id":    result.RegistryID,
		"application_id": result.ApplicationID,
	})
	writeJSON(w, http.StatusOK, provisionDeviceResponse{
		Status:        "provisioned",
		RegistryID:    result.RegistryID,
		ApplicationID: result.ApplicationID,
	})
}

// handleProvisionGateway registers a gateway on the network registry and
// mints its LNS link key.
func (s *Server) handleProvisionGateway(w http.ResponseWriter, r *http.Request) {
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

	if verdict := provisioning.CanProvisionGateway(gateway, cfg, permissionsFromContext(ctx)); !verdict.Allowed {
		s.writeNotEligible(w, verdict)
		return
	}

	result, err := s.coordinator.ProvisionGateway(ctx, gateway)
	if err != nil {
		if errors.Is(err, provisioning.ErrNotConfigured) {
			writeError(w, http.StatusConflict, ErrCodeNotConfigured,
				"organisation has no registry configuration")
			return
		}
		s.writeRegistryError(w, err)
		return
	}

	if err := s.fleet.MarkGatewayProvisioned(ctx, orgID, id, result.RegistryID); err != nil {
		writeInternalError(w, "failed to record provisioned state")
		return
	}

	s.publishLifecycle(mqtt.LifecycleEvent{
		Type:       mqtt.EventProvisioned,
		OrgID:      orgID,
		EntityType: "gateway",
		EntityEUI:  gateway.GatewayEUI,
	})
	s.recordAudit(r, orgID, audit.ActionProvision, "gateway", id, map[string]any{
		"registry_id": result.RegistryID,
	})
	writeJSON(w, http.StatusOK, provisionGatewayResponse{
		Status:     "provisioned",
		RegistryID: result.RegistryID,
		LNSKey:     result.LNSKey,
	})
}

// writeNotEligible maps a denied eligibility verdict to a response.
// Permission denials are 403; every other prerequisite failure is a
// conflict with the verdict's reason rendered verbatim.
func (s *Server) writeNotEligible(w http.ResponseWriter, verdict provisioning.Eligibility) {
	status := http.StatusConflict
	if verdict.Code == provisioning.CodePermissionDenied {
		status = http.StatusForbidden
	}
	writeJSON(w, status, Error{
		Status:  status,
		Code:    ErrCodeNotEligible,
		Message: verdict.Reason,
		Hint:    string(verdict.Code),
	})
}

// publishLifecycle publishes a lifecycle event when a publisher is
// wired. Publish failures are logged and dropped; the mutation already
// happened and the event stream is advisory.
func (s *Server) publishLifecycle(event mqtt.LifecycleEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLifecycle(event); err != nil {
		s.logger.Warn("publishing lifecycle event",
			"type", event.Type,
			"org_id", event.OrgID,
			"error", err,
		)
	}
}
