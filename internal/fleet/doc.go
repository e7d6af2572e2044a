// Package fleet tracks the physical inventory: cold-chain sensors and
// the LoRaWAN gateways that backhaul them, per organisation.
//
// Entities are never deleted. Archiving retires a record locally and,
// when the entity was provisioned, enqueues a deprovision job so the
// registry side is cleaned up asynchronously. A non-null registry_id
// is the provisioned marker; provisioning must not run again while it
// is set.
package fleet
