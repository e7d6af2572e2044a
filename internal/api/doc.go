// Package api provides the HTTP REST API for FreshTrack Pro's network
// registry integration.
//
// It exposes eligibility checks, provisioning, deprovision job management,
// orphan reconciliation, and fleet archive operations to the dashboard and
// operational tooling.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
