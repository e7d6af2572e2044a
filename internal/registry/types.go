package registry

// OwnerType selects the registry-side owner a resource is registered under.
type OwnerType string

// Owner types.
const (
	OwnerUser         OwnerType = "user"
	OwnerOrganization OwnerType = "org"
)

// Owner identifies the registry-side user or organisation that owns a
// newly created application or gateway.
type Owner struct {
	Type OwnerType
	ID   string
}

// Application is the registry-side application record.
type Application struct {
	ID          string `json:"-"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// EndDevice is the registry-side end-device record.
type EndDevice struct {
	DeviceID string `json:"-"`
	DevEUI   string `json:"-"`
	JoinEUI  string `json:"-"`
	Name     string `json:"name,omitempty"`
}

// Gateway is the registry-side gateway record.
type Gateway struct {
	GatewayID string `json:"-"`
	EUI       string `json:"-"`
	Name      string `json:"name,omitempty"`

	// FrequencyPlanIDs lists the radio frequency plans the gateway uses.
	FrequencyPlanIDs []string `json:"frequency_plan_ids,omitempty"`

	// GatewayServerAddress is the cross-cluster pointer: the identity-side
	// record must name the regional host that terminates the radio link.
	GatewayServerAddress string `json:"gateway_server_address,omitempty"`

	EnforceDutyCycle       bool `json:"enforce_duty_cycle"`
	RequireAuthenticated   bool `json:"require_authenticated_connection"`
	StatusPublic           bool `json:"status_public"`
	LocationPublic         bool `json:"location_public"`
}

// APIKey is a registry API key. The secret Key is only returned on
// creation and cannot be retrieved later.
type APIKey struct {
	ID     string   `json:"id"`
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Rights []string `json:"rights"`
}

// Webhook is the registry-side webhook configuration delivered to our
// ingest endpoint. Stored on the regional application server.
type Webhook struct {
	WebhookID string `json:"-"`
	BaseURL   string `json:"base_url"`
	Format    string `json:"format"`

	// UplinkPath, when set, enables uplink message delivery relative to
	// BaseURL.
	UplinkPath string `json:"-"`
}

// Gateway API key rights used during provisioning.
const (
	// RightGatewayLink authorises a gateway's LNS connection.
	RightGatewayLink = "RIGHT_GATEWAY_LINK"

	// RightGatewayInfo grants read access to gateway information.
	RightGatewayInfo = "RIGHT_GATEWAY_INFO"
)
