// Package netconfig tracks how much an organisation's LoRaWAN network
// configuration can be trusted.
//
// A configuration moves through trust levels: a locally edited draft,
// a draft validated against the registry, the canonical persisted
// record, and the degraded drifted/invalid states. Machine owns the
// transitions; ComputeDriftHash is the equality oracle that detects
// divergence between local edits and the canonical record.
//
// Repository stores the canonical per-organisation record together
// with the provisioning checkpoints (application created, webhook
// configured) that let the coordinator resume instead of restart.
package netconfig
