package netconfig

import "time"

// Logger is the minimal logging interface the state machine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// transitions is the allowed state graph. Out-of-table transitions are
// warned about but still applied: callers recovering from partial
// failures sometimes arrive through sequences the table never
// anticipated, and refusing the move would wedge them in a stale state.
var transitions = map[State][]State{
	StateLocalDraft: {StateValidated, StateInvalid},
	StateValidated:  {StateCanonical, StateLocalDraft, StateInvalid},
	StateCanonical:  {StateDrifted, StateValidated, StateInvalid},
	StateDrifted:    {StateValidated, StateCanonical, StateInvalid},
	StateInvalid:    {StateLocalDraft, StateValidated},
}

// Machine applies trust-state transitions to a Context. Machine itself
// holds no state beyond the logger; it is safe to share one Machine
// across goroutines as long as each Context is confined to one caller.
type Machine struct {
	logger Logger
}

// NewMachine creates a state machine with a no-op logger.
func NewMachine() *Machine {
	return &Machine{logger: noopLogger{}}
}

// SetLogger sets the logger for transition warnings.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// transition moves ctx to next, warning when the move is not in the
// allowed table.
func (m *Machine) transition(ctx *Context, next State) {
	if !allowed(ctx.State, next) {
		m.logger.Warn("configuration state transition outside allowed table",
			"from", string(ctx.State),
			"to", string(next),
		)
	}
	ctx.State = next
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetValidated records a registry validation outcome and moves the
// context to validated.
func (m *Machine) SetValidated(ctx *Context, result *ValidationResult) {
	m.transition(ctx, StateValidated)
	now := time.Now().UTC()
	ctx.LastValidatedAt = &now
	ctx.LastValidationResult = result
	ctx.ErrorMessage = ""
}

// SetCanonical marks the configuration as persisted authoritative state
// and records the hash future drift checks compare against.
func (m *Machine) SetCanonical(ctx *Context, hash string) {
	m.transition(ctx, StateCanonical)
	ctx.CanonicalHash = hash
	ctx.LocalHash = hash
	ctx.Source = SourceCanonicalStore
	ctx.ErrorMessage = ""
}

// SetInvalid marks the configuration as failed validation.
func (m *Machine) SetInvalid(ctx *Context, message string) {
	m.transition(ctx, StateInvalid)
	ctx.ErrorMessage = message
}

// SetDrifted marks the configuration as diverged from the canonical
// record.
func (m *Machine) SetDrifted(ctx *Context) {
	m.transition(ctx, StateDrifted)
}

// ResetToDraft returns the context to its initial draft values. The
// canonical hash is preserved so later drift checks stay meaningful.
func (m *Machine) ResetToDraft(ctx *Context) {
	m.transition(ctx, StateLocalDraft)
	ctx.Source = SourceLocal
	ctx.LocalHash = ""
	ctx.LastValidatedAt = nil
	ctx.LastValidationResult = nil
	ctx.ErrorMessage = ""
}

// CheckForDrift hashes the local values and compares against the
// canonical hash. When the context is canonical and the hashes differ
// it transitions to drifted and returns true. Without a canonical hash
// there is nothing to drift from, so the answer is always false.
func (m *Machine) CheckForDrift(ctx *Context, local DriftInput) bool {
	ctx.LocalHash = ComputeDriftHash(local)
	if ctx.CanonicalHash == "" {
		return false
	}
	if ctx.LocalHash == ctx.CanonicalHash {
		return false
	}
	if ctx.State == StateCanonical {
		m.SetDrifted(ctx)
	}
	return true
}
