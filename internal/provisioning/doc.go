// Package provisioning decides whether registry-side provisioning may
// run and orchestrates the calls that set an organisation up.
//
// The eligibility gate is pure: given an entity, the organisation's
// registry configuration and optional caller permissions it returns an
// allow/deny verdict with a stable code and a human-readable reason.
// UI layers render the reason verbatim, so a denial always carries one.
//
// The coordinator brings the organisation's registry application and
// webhook into existence idempotently. Each completed step persists a
// checkpoint so a later invocation resumes instead of redoing external
// side effects, and every step is recorded in the append-only
// provisioning log.
package provisioning
