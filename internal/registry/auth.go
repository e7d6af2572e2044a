package registry

import (
	"context"
	"encoding/json"
	"net/http"
)

// AuthInfo reports the rights granted to the configured credential.
// Registries expose the introspection endpoint on the identity server;
// the response shape varies slightly between key kinds, so every known
// nesting of the rights list is tried.
func (c *Client) AuthInfo(ctx context.Context) ([]string, *Response, error) {
	resp, err := c.call(ctx, http.MethodGet, c.identity("/auth_info"), nil,
		"the platform API key was rejected outright; store a valid key before validating")
	if err != nil {
		return nil, resp, err
	}

	var body struct {
		APIKey struct {
			APIKey struct {
				Rights []string `json:"rights"`
			} `json:"api_key"`
			Rights []string `json:"rights"`
		} `json:"api_key"`
		UniversalRights struct {
			Rights []string `json:"rights"`
		} `json:"universal_rights"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, resp, &APIError{Status: resp.Status, Body: string(resp.Body)}
	}

	rights := body.APIKey.APIKey.Rights
	if len(rights) == 0 {
		rights = body.APIKey.Rights
	}
	if len(rights) == 0 {
		rights = body.UniversalRights.Rights
	}
	return rights, resp, nil
}
