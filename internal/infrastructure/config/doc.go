// Package config loads and validates FreshTrack Pro configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by FRESHTRACK_* environment variables. Secrets
// (registry API key, JWT secret) should always be supplied through the
// environment rather than the file.
package config
