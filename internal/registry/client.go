package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBody caps how much of a registry response we buffer. Error
// bodies are kept for diagnostics; none of the endpoints we call return
// payloads anywhere near this size.
const maxResponseBody = 1 << 20

// Config holds the connection settings for the registry client.
type Config struct {
	// IdentityURL is the base URL of the identity server (global
	// registry), e.g. https://eu1.cloud.thethings.network.
	IdentityURL string

	// RegionalURL is the base URL of the regional server handling this
	// deployment's traffic, e.g. https://nam1.cloud.thethings.network.
	RegionalURL string

	// RegionalHost is the bare hostname of the regional server, used as
	// the gateway_server_address pointer on gateway records.
	RegionalHost string

	// APIKey is the platform credential used for all requests.
	APIKey string

	// Timeout bounds each request end to end.
	Timeout time.Duration

	// UserAgent identifies this client in registry request logs.
	UserAgent string
}

// Client talks to the registry over HTTP. Safe for concurrent use.
type Client struct {
	cfg   Config
	httpc *http.Client
}

// New creates a registry client from cfg.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "freshtrack-provisioner"
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}
}

// Response is the outcome of a completed registry request. Body is the
// raw response payload; RequestID is the registry's correlation ID when
// it sent one.
type Response struct {
	Status    int
	Body      json.RawMessage
	RequestID string
}

// OK reports whether the response status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// identity builds a URL on the identity server.
func (c *Client) identity(format string, args ...any) string {
	return c.cfg.IdentityURL + "/api/v3" + fmt.Sprintf(format, args...)
}

// regional builds a URL on the regional server.
func (c *Client) regional(format string, args ...any) string {
	return c.cfg.RegionalURL + "/api/v3" + fmt.Sprintf(format, args...)
}

// do executes a request and returns the buffered response. A non-nil
// error means the request never completed (transport failure or
// timeout) and is always a *TransientError; HTTP-level failures are
// reported through Response.Status and classified by the caller.
func (c *Client) do(ctx context.Context, method, url string, payload any) (*Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("registry: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransientError{Status: resp.StatusCode, Err: err}
	}

	return &Response{
		Status:    resp.StatusCode,
		Body:      data,
		RequestID: resp.Header.Get("X-Request-Id"),
	}, nil
}

// call runs a request and classifies the response. The Response is
// returned even alongside a non-nil error so callers can log status,
// body and request ID.
func (c *Client) call(ctx context.Context, method, url string, payload any, authHint string) (*Response, error) {
	resp, err := c.do(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}
	return resp, classify(resp, authHint)
}
