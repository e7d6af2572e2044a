package registry

import (
	"context"
	"encoding/json"
	"net/http"
)

// GetGateway fetches a gateway record from the identity server.
func (c *Client) GetGateway(ctx context.Context, gatewayID string) (*Response, error) {
	return c.call(ctx, http.MethodGet, c.identity("/gateways/%s", gatewayID), nil,
		"the platform API key cannot read gateways; it may be expired or scoped to another owner")
}

// CreateGateway registers a gateway under owner on the identity server.
// If gw.GatewayServerAddress is empty it is filled from the configured
// regional host, so the radio link terminates on the correct regional
// cluster rather than the identity cluster's default.
func (c *Client) CreateGateway(ctx context.Context, owner Owner, gw Gateway) (*Response, error) {
	if gw.GatewayServerAddress == "" {
		gw.GatewayServerAddress = c.cfg.RegionalHost
	}

	var url string
	switch owner.Type {
	case OwnerOrganization:
		url = c.identity("/organizations/%s/gateways", owner.ID)
	default:
		url = c.identity("/users/%s/gateways", owner.ID)
	}

	payload := map[string]any{
		"gateway": struct {
			IDs map[string]string `json:"ids"`
			Gateway
		}{
			IDs: map[string]string{
				"gateway_id": gw.GatewayID,
				"eui":        gw.EUI,
			},
			Gateway: gw,
		},
	}
	return c.call(ctx, http.MethodPost, url, payload,
		"the platform API key lacks gateway creation rights for this owner")
}

// CreateGatewayAPIKey mints an API key on a gateway. Provisioning uses
// this for the LNS link key (RIGHT_GATEWAY_LINK) and the CUPS key.
func (c *Client) CreateGatewayAPIKey(ctx context.Context, gatewayID, name string, rights []string) (*APIKey, *Response, error) {
	payload := map[string]any{
		"name":   name,
		"rights": rights,
	}
	resp, err := c.call(ctx, http.MethodPost, c.identity("/gateways/%s/api-keys", gatewayID), payload,
		"the platform API key cannot manage API keys on this gateway")
	if err != nil {
		return nil, resp, err
	}

	var key APIKey
	if err := json.Unmarshal(resp.Body, &key); err != nil {
		return nil, resp, &APIError{Status: resp.Status, Body: string(resp.Body)}
	}
	return &key, resp, nil
}

// DeleteGateway soft-deletes the gateway on the identity server. The
// record still holds the EUI until purged, so DeleteGateway alone does
// not free the EUI for re-registration.
func (c *Client) DeleteGateway(ctx context.Context, gatewayID string) (*Response, error) {
	return c.call(ctx, http.MethodDelete, c.identity("/gateways/%s", gatewayID), nil,
		"the platform API key lacks gateway delete rights")
}

// PurgeGateway hard-deletes a soft-deleted gateway, releasing its EUI.
// Must follow DeleteGateway; purging a live gateway fails.
func (c *Client) PurgeGateway(ctx context.Context, gatewayID string) (*Response, error) {
	return c.call(ctx, http.MethodDelete, c.identity("/gateways/%s/purge", gatewayID), nil,
		"the platform API key lacks gateway purge rights (an admin-level right on most clusters)")
}
