// Package deprovision is the durable removal queue for registry-side
// device and gateway records.
//
// Archiving an entity that has been provisioned enqueues one job here.
// A background worker claims jobs with an atomic status transition,
// attempts the registry-side removal, and either completes the job or
// schedules a retry with backoff. Jobs that exhaust their attempts
// become BLOCKED and stay out of worker pickup until an operator
// resets them.
//
// The Reconciler covers the opposite gap: identifiers the registry
// knows about that local tracking has lost. It only ever proposes
// jobs; enqueueing orphans is a separate explicit call.
package deprovision
