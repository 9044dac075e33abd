package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/trace"
)

// DefaultMaxSteps is the default maximum number of capability calls per
// trace. This prevents runaway chains from consuming unbounded
// integration quota.
const DefaultMaxSteps = 1000

// Executor runs registered capabilities through the governed pipeline.
//
// The chain is composed once at construction:
//
//	recorder -> permissions -> policies -> capability executor
//
// One Executor serves a process; it is safe for concurrent use except
// where replay's sequential-cursor constraint applies (see package doc).
type Executor struct {
	registry *capability.Registry
	recorder *Recorder
	tokens   TokenGenerator
	handler  Handler

	maxSteps int
	mu       sync.Mutex

	// quotas holds one enforcer per trace id, created lazily on the
	// first call and kept until ReleaseTrace. Callers that mint trace
	// ids release them when the chain finishes; unreleased ids live for
	// the Executor's lifetime.
	quotas map[string]*quotaEnforcer
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxSteps sets the maximum capability calls per trace.
//
// Default: 1000 (DefaultMaxSteps).
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Executor) {
		e.maxSteps = maxSteps
	}
}

// WithStrictReplay turns replay step-hash mismatches into hard
// REPLAY_DIVERGENCE failures instead of warnings.
func WithStrictReplay(strict bool) Option {
	return func(e *Executor) {
		e.recorder.strict = strict
	}
}

// WithTokenGenerator overrides the trace token generator.
// Tests use NewFixedGenerator for deterministic tokens.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(e *Executor) {
		e.tokens = gen
	}
}

// NewExecutor creates an Executor over the given registry and trace
// store.
func NewExecutor(reg *capability.Registry, traces trace.Store, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		recorder: NewRecorder(traces, false),
		tokens:   UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		quotas:   make(map[string]*quotaEnforcer),
	}
	for _, opt := range opts {
		opt(e)
	}

	terminal := func(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context) (any, error) {
		return def.Execute(ctx, params, ec)
	}
	e.handler = Compose(terminal, e.recorder.Middleware(), EnforcePermissions, EnforcePolicies)

	return e
}

// NewTrace generates a fresh trace token for a new execution chain.
func (e *Executor) NewTrace() string {
	return e.tokens.Generate()
}

// Execute looks up the capability and runs it through the pipeline.
//
// Fails with UNKNOWN_CAPABILITY if the id is not registered and with
// LEGACY_CAPABILITY if the definition has no executor - in both cases
// before any middleware runs. The executor never retries; retry policy
// is a concern of the caller.
func (e *Executor) Execute(ctx context.Context, capabilityID string, params map[string]any, ec *capability.Context) (any, error) {
	def, ok := e.registry.Get(capabilityID)
	if !ok {
		return nil, NewUnknownCapabilityError(capabilityID)
	}
	if def.Execute == nil {
		return nil, NewLegacyCapabilityError(capabilityID)
	}

	// Quota applies per trace, in live and replay modes alike, so a
	// replayed chain cannot outrun what a live chain was allowed.
	if ec.TraceID != "" {
		if err := e.checkQuota(ec.TraceID); err != nil {
			return nil, err
		}
	}

	slog.Debug("executing capability",
		"org_id", ec.OrgID,
		"capability_id", def.ID,
		"integration_id", def.IntegrationID,
		"replay_mode", string(ec.ReplayMode),
		"trace_id", ec.TraceID)

	out, err := e.handler(ctx, def, params, ec)
	if err != nil {
		return nil, err
	}

	slog.Info("capability executed",
		"capability_id", def.ID,
		"integration_id", def.IntegrationID,
		"replay_mode", string(ec.ReplayMode))

	return out, nil
}

// ReleaseTrace drops the quota state for a finished chain. Further
// calls under the same trace id start a fresh quota.
func (e *Executor) ReleaseTrace(traceID string) {
	e.mu.Lock()
	delete(e.quotas, traceID)
	e.mu.Unlock()
}

func (e *Executor) checkQuota(traceID string) error {
	e.mu.Lock()
	q, ok := e.quotas[traceID]
	if !ok {
		q = newQuotaEnforcer(e.maxSteps)
		e.quotas[traceID] = q
	}
	e.mu.Unlock()
	return q.check(traceID)
}
