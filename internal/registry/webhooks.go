package registry

import (
	"context"
	"net/http"
)

// SetWebhook creates or replaces a webhook on the regional application
// server. PUT semantics make this safe to repeat with the same
// configuration.
func (c *Client) SetWebhook(ctx context.Context, appID string, hook Webhook) (*Response, error) {
	payload := map[string]any{
		"webhook": map[string]any{
			"ids": map[string]any{
				"webhook_id":      hook.WebhookID,
				"application_ids": map[string]string{"application_id": appID},
			},
			"base_url": hook.BaseURL,
			"format":   hook.Format,
			"uplink_message": map[string]string{
				"path": hook.UplinkPath,
			},
		},
		"field_mask": map[string]any{
			"paths": []string{"base_url", "format", "uplink_message"},
		},
	}
	return c.call(ctx, http.MethodPut,
		c.regional("/as/webhooks/%s/%s", appID, hook.WebhookID), payload,
		"the platform API key lacks webhook write rights on this application")
}
