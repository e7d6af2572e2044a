// Package registry is the HTTP client for the external LoRaWAN device
// registry (a TTN v3-style network server).
//
// The registry federates identity and traffic handling across two services
// ("two truths"):
//
//   - the identity server owns the global application, device and gateway
//     registry (applications, end-device identity, API keys)
//   - the regional server handles per-region traffic: the network,
//     application and join subsystems, webhooks, and gateway radio links
//
// Every operation here is routed to the correct service; getting this wrong
// produces confusing 404s because a record can exist on one plane and not
// the other. Gateway records created on the identity server must point
// gateway_server_address at the regional host so traffic lands in the right
// region.
//
// Non-2xx responses are classified into the error taxonomy in errors.go:
// auth failures are fatal and carry a remediation hint, conflicts are
// success-equivalent for idempotent ensure flows, 5xx and transport
// timeouts are retryable.
package registry
