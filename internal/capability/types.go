package capability

import (
	"context"

	"github.com/loomworks/gantry/internal/trace"
)

// Mode classifies what a capability does to the integration it targets.
type Mode string

const (
	// ModeRead is a side-effect-free query (list issues, fetch a page).
	ModeRead Mode = "read"

	// ModeWrite mutates integration state (create issue, update row).
	ModeWrite Mode = "write"

	// ModeAction triggers behavior that is neither a plain read nor a
	// durable write (send a chat message, trigger a build).
	ModeAction Mode = "action"
)

// Access is the permission level a caller holds or a capability demands.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// RequiredAccess returns the access level a capability of this mode
// demands: write unless the capability is a pure read. Write access does
// NOT imply read access; the two are checked exactly.
func (m Mode) RequiredAccess() Access {
	if m == ModeRead {
		return AccessRead
	}
	return AccessWrite
}

// ParameterContract declares the parameters a capability understands.
//
// Required parameters missing from a compiled plan reject the plan at
// validation time. Parameters outside Required and Optional are dropped
// with a warning, never rejected (forward compatibility). A contract
// declaring no parameters at all is open: it recognizes everything.
type ParameterContract struct {
	Required []string `json:"required,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// Open reports whether the contract accepts arbitrary parameters.
func (pc ParameterContract) Open() bool {
	return len(pc.Required) == 0 && len(pc.Optional) == 0
}

// Recognizes reports whether the contract knows the named parameter.
func (pc ParameterContract) Recognizes(name string) bool {
	if pc.Open() {
		return true
	}
	for _, r := range pc.Required {
		if r == name {
			return true
		}
	}
	for _, o := range pc.Optional {
		if o == name {
			return true
		}
	}
	return false
}

// Executor is a capability's integration-facing implementation.
//
// Executors receive the flat parameter map produced by the plan compiler
// (or passed directly by a caller) and the governed execution context.
// They run only after the middleware pipeline has admitted the call.
type Executor func(ctx context.Context, params map[string]any, ec *Context) (any, error)

// Definition is one typed, permissioned unit of integration work.
//
// Definitions are immutable once registered. Re-registering an id
// overwrites the previous definition wholesale (with a warning) - the
// registry never merges fields.
//
// A nil Execute marks a legacy, metadata-only definition: it can be
// listed and referenced by plans but attempting to run it fails with
// ErrCodeLegacyCapability.
type Definition struct {
	ID            string
	IntegrationID string
	Mode          Mode
	Params        ParameterContract
	Execute       Executor
}

// ReplayMode selects how the determinism recorder treats an execution
// chain. See the engine package for semantics.
type ReplayMode string

const (
	ReplayNone   ReplayMode = "none"
	ReplayRecord ReplayMode = "record"
	ReplayReplay ReplayMode = "replay"
)

// Context carries the governed identity of one execution chain.
//
// One Context serves one chain: the replay cursor advances as the chain
// consumes recorded steps, so callers must reuse the same Context (and
// must not share it across concurrent chains - replay is strictly
// sequential).
type Context struct {
	OrgID       string
	UserID      string
	Permissions []Permission
	Policies    []Policy
	ReplayMode  ReplayMode
	TraceID     string

	// BearerToken is the integration credential for the current call,
	// set by the plan runner from the credential provider. Executors
	// that need OAuth read it here; it is never persisted.
	BearerToken string

	// Cursor is the replay position. Lazily created by the recorder on
	// first use when ReplayMode is replay.
	Cursor *trace.Cursor
}
