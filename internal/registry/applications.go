package registry

import (
	"context"
	"encoding/json"
	"net/http"
)

// GetApplication fetches an application record from the identity server.
// Returns ErrNotFound when the application does not exist, which ensure
// flows use as the signal to create it.
func (c *Client) GetApplication(ctx context.Context, appID string) (*Response, error) {
	return c.call(ctx, http.MethodGet, c.identity("/applications/%s", appID), nil,
		"the platform API key cannot read applications; it may be expired or scoped to another owner")
}

// CreateApplication registers a new application under owner on the
// identity server. ErrConflict means the application ID is already
// taken, which callers treat as success when the ID is deterministic.
func (c *Client) CreateApplication(ctx context.Context, owner Owner, app Application) (*Response, error) {
	var url string
	switch owner.Type {
	case OwnerOrganization:
		url = c.identity("/organizations/%s/applications", owner.ID)
	default:
		url = c.identity("/users/%s/applications", owner.ID)
	}

	payload := map[string]any{
		"application": struct {
			IDs map[string]string `json:"ids"`
			Application
		}{
			IDs:         map[string]string{"application_id": app.ID},
			Application: app,
		},
	}
	return c.call(ctx, http.MethodPost, url, payload,
		"the platform API key lacks application creation rights for this owner")
}

// CreateApplicationAPIKey mints a scoped API key on an application. The
// returned secret appears only in this response and cannot be fetched
// again.
func (c *Client) CreateApplicationAPIKey(ctx context.Context, appID, name string, rights []string) (*APIKey, *Response, error) {
	payload := map[string]any{
		"name":   name,
		"rights": rights,
	}
	resp, err := c.call(ctx, http.MethodPost, c.identity("/applications/%s/api-keys", appID), payload,
		"the platform API key cannot manage API keys on this application")
	if err != nil {
		return nil, resp, err
	}

	var key APIKey
	if err := json.Unmarshal(resp.Body, &key); err != nil {
		return nil, resp, &APIError{Status: resp.Status, Body: string(resp.Body)}
	}
	return &key, resp, nil
}
