package fleet

import "time"

// Entity statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// DefaultFrequencyPlan is the radio plan assigned to gateways that do
// not specify one. FSB 2 matches the sub-band our sensor fleet ships
// configured for.
const DefaultFrequencyPlan = "US_902_928_FSB_2"

// Device is a provisionable LoRaWAN sensor.
type Device struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	Name   string `json:"name"`
	DevEUI string `json:"dev_eui"`

	// AppKey is the OTAA root key. Required before the device can be
	// provisioned; nil means the key has not been captured yet.
	AppKey *string `json:"-"`

	// RegistryID is set once the device exists on the registry. Non-nil
	// means provisioned.
	RegistryID            *string `json:"registry_id"`
	RegistryApplicationID *string `json:"registry_application_id"`

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provisioned reports whether the device has a registry-side record.
func (d *Device) Provisioned() bool {
	return d.RegistryID != nil && *d.RegistryID != ""
}

// Gateway is a provisionable LoRaWAN gateway.
type Gateway struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	Name       string `json:"name"`
	GatewayEUI string `json:"gateway_eui"`

	RegistryID *string `json:"registry_id"`

	FrequencyPlan string    `json:"frequency_plan"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Provisioned reports whether the gateway has a registry-side record.
func (g *Gateway) Provisioned() bool {
	return g.RegistryID != nil && *g.RegistryID != ""
}
