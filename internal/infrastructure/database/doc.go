// Package database manages the SQLite connection and schema migrations
// for FreshTrack Pro.
//
// The provisioning core keeps all durable state here: tracked sensors and
// gateways, per-organisation registry configuration with coordinator
// checkpoints, the append-only provisioning log, and the deprovision job
// queue. Migrations are embedded into the binary (see the migrations
// package) and applied on startup, each in its own transaction.
package database
