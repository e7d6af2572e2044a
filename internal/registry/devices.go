package registry

import (
	"context"
	"encoding/json"
	"net/http"
)

// endDeviceIDs is the identifier block TTN-style registries use on
// end-device records.
type endDeviceIDs struct {
	DeviceID       string            `json:"device_id"`
	ApplicationIDs map[string]string `json:"application_ids"`
	DevEUI         string            `json:"dev_eui,omitempty"`
	JoinEUI        string            `json:"join_eui,omitempty"`
}

// CreateDevice registers an end device's identity under appID on the
// identity server. Activation records on the regional subsystems are
// created separately by the registry itself on first join.
func (c *Client) CreateDevice(ctx context.Context, appID string, dev EndDevice) (*Response, error) {
	payload := map[string]any{
		"end_device": struct {
			IDs endDeviceIDs `json:"ids"`
			EndDevice
		}{
			IDs: endDeviceIDs{
				DeviceID:       dev.DeviceID,
				ApplicationIDs: map[string]string{"application_id": appID},
				DevEUI:         dev.DevEUI,
				JoinEUI:        dev.JoinEUI,
			},
			EndDevice: dev,
		},
	}
	return c.call(ctx, http.MethodPost, c.identity("/applications/%s/devices", appID), payload,
		"the platform API key lacks device write rights on this application")
}

// ListDevices returns the device identifiers registered under appID on
// the identity server.
func (c *Client) ListDevices(ctx context.Context, appID string) ([]EndDevice, *Response, error) {
	resp, err := c.call(ctx, http.MethodGet,
		c.identity("/applications/%s/devices?field_mask=ids", appID), nil,
		"the platform API key cannot list devices on this application")
	if err != nil {
		return nil, resp, err
	}

	var body struct {
		EndDevices []struct {
			IDs endDeviceIDs `json:"ids"`
		} `json:"end_devices"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, resp, &APIError{Status: resp.Status, Body: string(resp.Body)}
	}

	devices := make([]EndDevice, 0, len(body.EndDevices))
	for _, d := range body.EndDevices {
		devices = append(devices, EndDevice{
			DeviceID: d.IDs.DeviceID,
			DevEUI:   d.IDs.DevEUI,
			JoinEUI:  d.IDs.JoinEUI,
		})
	}
	return devices, resp, nil
}

// DeleteDevice removes the end device's identity record. This must run
// LAST in a full removal: once the identity record is gone the regional
// subsystem records become unreachable orphans.
func (c *Client) DeleteDevice(ctx context.Context, appID, deviceID string) (*Response, error) {
	return c.call(ctx, http.MethodDelete, c.identity("/applications/%s/devices/%s", appID, deviceID), nil,
		"the platform API key lacks device delete rights on this application")
}

// DeleteDeviceNS removes the device's network server record on the
// regional cluster.
func (c *Client) DeleteDeviceNS(ctx context.Context, appID, deviceID string) (*Response, error) {
	return c.call(ctx, http.MethodDelete, c.regional("/ns/applications/%s/devices/%s", appID, deviceID), nil,
		"the platform API key lacks network server rights on this application")
}

// DeleteDeviceAS removes the device's application server record on the
// regional cluster.
func (c *Client) DeleteDeviceAS(ctx context.Context, appID, deviceID string) (*Response, error) {
	return c.call(ctx, http.MethodDelete, c.regional("/as/applications/%s/devices/%s", appID, deviceID), nil,
		"the platform API key lacks application server rights on this application")
}

// DeleteDeviceJS removes the device's join server record (root keys) on
// the regional cluster.
func (c *Client) DeleteDeviceJS(ctx context.Context, appID, deviceID string) (*Response, error) {
	return c.call(ctx, http.MethodDelete, c.regional("/js/applications/%s/devices/%s", appID, deviceID), nil,
		"the platform API key lacks join server rights on this application")
}
