package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// Entity provisioning step names as they appear in the provisioning log.
const (
	stepProvisionDevice  = "provision_device"
	stepProvisionGateway = "provision_gateway"
	stepGatewayLNSKey    = "gateway_lns_key"
)

// lnsKeyName names the per-gateway API key minted for the LNS link.
const lnsKeyName = "freshtrack-lns"

// DeviceProvisionResult reports the registry identifiers a successful
// device provision produced.
type DeviceProvisionResult struct {
	RegistryID    string `json:"registry_id"`
	ApplicationID string `json:"application_id"`
}

// GatewayProvisionResult reports the registry identifier and the freshly
// minted LNS key. The key's secret is only ever available here: the
// registry does not return it again.
type GatewayProvisionResult struct {
	RegistryID string           `json:"registry_id"`
	LNSKey     *registry.APIKey `json:"lns_key,omitempty"`
}

// ProvisionDevice registers a device's identity on the registry under
// the organisation's application. The registry ID is derived from the
// DevEUI, so re-running after a partial failure targets the same record
// and a conflict means the work is already done.
func (c *Coordinator) ProvisionDevice(ctx context.Context, d *fleet.Device) (*DeviceProvisionResult, error) {
	cfg, err := c.configs.Get(ctx, d.OrgID)
	if errors.Is(err, netconfig.ErrConfigNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("loading org config: %w", err)
	}

	appID := ApplicationIDForOrg(d.OrgID)
	if cfg.ApplicationID != nil && *cfg.ApplicationID != "" {
		appID = *cfg.ApplicationID
	}

	eui, err := fleet.NormalizeEUI(d.DevEUI)
	if err != nil {
		return nil, fmt.Errorf("%w: device EUI: %v", ErrStepFailed, err)
	}
	registryID := fleet.DeviceRegistryID(eui)

	c.logStep(ctx, d.OrgID, stepProvisionDevice, StepStarted, "registering device "+registryID, 0, nil, nil)
	start := time.Now()

	endpoint := "applications/" + appID + "/devices"
	resp, err := c.registry.CreateDevice(ctx, appID, registry.EndDevice{
		DeviceID: registryID,
		DevEUI:   eui,
		JoinEUI:  eui,
		Name:     d.Name,
	})
	if err != nil && registry.IsConflict(err) {
		// The device record already exists under its deterministic ID.
		err = nil
	}
	if err != nil {
		c.logFailure(ctx, d.OrgID, stepProvisionDevice, err, time.Since(start).Milliseconds(), resp, &endpoint)
		if registry.IsAuth(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: provision device: %v", ErrStepFailed, err)
	}

	c.logStep(ctx, d.OrgID, stepProvisionDevice, StepSuccess, "device "+registryID+" registered", time.Since(start).Milliseconds(), resp, &endpoint)
	c.logger.Info("registry device provisioned",
		"org_id", d.OrgID,
		"device_id", d.ID,
		"registry_id", registryID,
		"application_id", appID,
	)
	return &DeviceProvisionResult{RegistryID: registryID, ApplicationID: appID}, nil
}

// ProvisionGateway registers a gateway on the registry and mints its LNS
// link key. The gateway record is created conflict-as-success; the key
// is minted fresh on every run because secrets are unrecoverable, so a
// retry after a partial failure yields a new working key rather than a
// lost one.
func (c *Coordinator) ProvisionGateway(ctx context.Context, g *fleet.Gateway) (*GatewayProvisionResult, error) {
	if _, err := c.configs.Get(ctx, g.OrgID); errors.Is(err, netconfig.ErrConfigNotFound) {
		return nil, ErrNotConfigured
	} else if err != nil {
		return nil, fmt.Errorf("loading org config: %w", err)
	}

	eui, err := fleet.NormalizeEUI(g.GatewayEUI)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway EUI: %v", ErrStepFailed, err)
	}
	registryID := fleet.GatewayRegistryID(eui)

	c.logStep(ctx, g.OrgID, stepProvisionGateway, StepStarted, "registering gateway "+registryID, 0, nil, nil)
	start := time.Now()

	plan := g.FrequencyPlan
	if plan == "" {
		plan = fleet.DefaultFrequencyPlan
	}

	endpoint := "gateways (create)"
	resp, err := c.registry.CreateGateway(ctx, c.owner, registry.Gateway{
		GatewayID:            registryID,
		EUI:                  eui,
		Name:                 g.Name,
		FrequencyPlanIDs:     []string{plan},
		EnforceDutyCycle:     true,
		RequireAuthenticated: true,
	})
	if err != nil && registry.IsConflict(err) {
		err = nil
	}
	if err != nil {
		c.logFailure(ctx, g.OrgID, stepProvisionGateway, err, time.Since(start).Milliseconds(), resp, &endpoint)
		if registry.IsAuth(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: provision gateway: %v", ErrStepFailed, err)
	}
	c.logStep(ctx, g.OrgID, stepProvisionGateway, StepSuccess, "gateway "+registryID+" registered", time.Since(start).Milliseconds(), resp, &endpoint)

	c.logStep(ctx, g.OrgID, stepGatewayLNSKey, StepStarted, "minting LNS key for "+registryID, 0, nil, nil)
	keyStart := time.Now()

	keyEndpoint := "gateways/" + registryID + "/api-keys"
	key, keyResp, err := c.registry.CreateGatewayAPIKey(ctx, registryID, lnsKeyName,
		[]string{registry.RightGatewayLink, registry.RightGatewayInfo})
	if err != nil {
		c.logFailure(ctx, g.OrgID, stepGatewayLNSKey, err, time.Since(keyStart).Milliseconds(), keyResp, &keyEndpoint)
		if registry.IsAuth(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: gateway LNS key: %v", ErrStepFailed, err)
	}
	c.logStep(ctx, g.OrgID, stepGatewayLNSKey, StepSuccess, "LNS key minted for "+registryID, time.Since(keyStart).Milliseconds(), keyResp, &keyEndpoint)

	c.logger.Info("registry gateway provisioned",
		"org_id", g.OrgID,
		"gateway_id", g.ID,
		"registry_id", registryID,
	)
	return &GatewayProvisionResult{RegistryID: registryID, LNSKey: key}, nil
}
