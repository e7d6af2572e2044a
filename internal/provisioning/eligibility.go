package provisioning

import (
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
)

// Code is a stable, machine-readable eligibility verdict.
type Code string

// Eligibility codes.
const (
	CodeAllowed              Code = "ALLOWED"
	CodeAlreadyProvisioned   Code = "ALREADY_PROVISIONED"
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeNotConfigured        Code = "NOT_CONFIGURED"
	CodeMissingAPIKey        Code = "MISSING_API_KEY"
	CodeMissingApplication   Code = "MISSING_APPLICATION"
	CodeMissingIdentity      Code = "MISSING_IDENTITY"
	CodeMissingSecret        Code = "MISSING_SECRET"
	CodeWrongKeyType         Code = "WRONG_KEY_TYPE"
	CodeMissingGatewayRights Code = "MISSING_GATEWAY_RIGHTS"
)

// Eligibility is the verdict of a gate check. When Allowed is false,
// Reason is always non-empty; UI layers render it verbatim.
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Code    Code   `json:"code"`
	Reason  string `json:"reason,omitempty"`
}

// Permissions carries the caller's management rights. A nil Permissions
// or a nil CanManage means "no opinion" and allows the action; only an
// explicit false denies. This keeps internal callers (the worker, CLI
// tooling) unaffected by the permission model.
type Permissions struct {
	CanManage *bool
}

func allow() Eligibility {
	return Eligibility{Allowed: true, Code: CodeAllowed}
}

func deny(code Code, reason string) Eligibility {
	return Eligibility{Allowed: false, Code: code, Reason: reason}
}

// managementDenied reports whether perms explicitly forbids management.
func managementDenied(perms *Permissions) bool {
	return perms != nil && perms.CanManage != nil && !*perms.CanManage
}

// checkConfig runs the shared configuration-completeness sequence.
// Returns a denial or the zero Eligibility when all checks pass.
func checkConfig(cfg *netconfig.OrgConfig) (Eligibility, bool) {
	if cfg == nil || !cfg.Enabled {
		return deny(CodeNotConfigured,
			"Network registry integration is not configured for this organisation. Complete the registry setup first."), false
	}
	if !cfg.HasAPIKey {
		return deny(CodeMissingAPIKey,
			"No registry API key is stored. Add an API key in the registry settings."), false
	}
	if cfg.ApplicationID == nil || *cfg.ApplicationID == "" {
		return deny(CodeMissingApplication,
			"No registry application is linked. Run the application setup before provisioning."), false
	}
	return Eligibility{}, true
}

// CanProvisionDevice decides whether a device may be registered on the
// registry. The checks run in a fixed order and the first failure wins:
// existence and authorisation come before configuration completeness,
// so a caller who lacks permission is told that rather than "fix your
// API key".
func CanProvisionDevice(d *fleet.Device, cfg *netconfig.OrgConfig, perms *Permissions) Eligibility {
	if d != nil && d.Provisioned() {
		return deny(CodeAlreadyProvisioned,
			"This device is already provisioned. Deprovision it before provisioning again.")
	}
	if managementDenied(perms) {
		return deny(CodePermissionDenied,
			"You do not have permission to manage devices in this organisation.")
	}
	if verdict, ok := checkConfig(cfg); !ok {
		return verdict
	}
	if d == nil || d.DevEUI == "" {
		return deny(CodeMissingIdentity,
			"The device has no DevEUI. Enter the hardware identifier printed on the device.")
	}
	if d.AppKey == nil || *d.AppKey == "" {
		return deny(CodeMissingSecret,
			"The device has no AppKey. Enter the OTAA key before provisioning.")
	}
	return allow()
}

// CanProvisionGateway decides whether a gateway may be registered.
// Shares the device ordering, then adds the gateway-specific
// credential checks: an application-scoped key structurally cannot
// manage gateways, and gateway rights must have been verified against
// the registry.
func CanProvisionGateway(g *fleet.Gateway, cfg *netconfig.OrgConfig, perms *Permissions) Eligibility {
	if g != nil && g.Provisioned() {
		return deny(CodeAlreadyProvisioned,
			"This gateway is already provisioned. Deprovision it before provisioning again.")
	}
	if managementDenied(perms) {
		return deny(CodePermissionDenied,
			"You do not have permission to manage gateways in this organisation.")
	}
	if verdict, ok := checkConfig(cfg); !ok {
		return verdict
	}
	if g == nil || g.GatewayEUI == "" {
		return deny(CodeMissingIdentity,
			"The gateway has no EUI. Enter the hardware identifier printed on the gateway.")
	}
	if cfg.CredentialScope == netconfig.ScopeApplication {
		return deny(CodeWrongKeyType,
			"The stored API key is application-scoped and cannot manage gateways. Store an organisation-scoped key.")
	}
	if !cfg.GatewayRightsVerified {
		return deny(CodeMissingGatewayRights,
			"The stored API key has not been verified for gateway rights. Re-validate the registry configuration.")
	}
	return allow()
}

// CanEditDevice checks only the caller's permission flag.
func CanEditDevice(_ *fleet.Device, perms *Permissions) Eligibility {
	if managementDenied(perms) {
		return deny(CodePermissionDenied,
			"You do not have permission to edit devices in this organisation.")
	}
	return allow()
}

// CanDeleteDevice checks only the caller's permission flag.
func CanDeleteDevice(_ *fleet.Device, perms *Permissions) Eligibility {
	if managementDenied(perms) {
		return deny(CodePermissionDenied,
			"You do not have permission to delete devices in this organisation.")
	}
	return allow()
}

// CanEditGateway checks only the caller's permission flag.
func CanEditGateway(_ *fleet.Gateway, perms *Permissions) Eligibility {
	if managementDenied(perms) {
		return deny(CodePermissionDenied,
			"You do not have permission to edit gateways in this organisation.")
	}
	return allow()
}

// CanDeleteGateway checks only the caller's permission flag.
func CanDeleteGateway(_ *fleet.Gateway, perms *Permissions) Eligibility {
	if managementDenied(perms) {
		return deny(CodePermissionDenied,
			"You do not have permission to delete gateways in this organisation.")
	}
	return allow()
}
