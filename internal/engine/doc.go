// Package engine executes registered capabilities behind a governed
// middleware pipeline.
//
// ARCHITECTURE:
//
// Every capability call flows through one composed chain:
//
//	[Recorder] -> [Permissions] -> [Policy] -> [Capability Executor]
//
// Composition is right-to-left: the first-listed middleware is
// outermost. The order is a deliberate security property:
//   - Permission and policy checks never run inside a replay skip.
//     When the recorder serves a recorded step it does NOT call next(),
//     so replay performs zero outbound side effects - but a recorded
//     trace can only exist because the checks admitted the original run.
//   - Capability-specific code can never bypass enforcement, because
//     executors are only ever invoked as the innermost handler.
//
// Enforcement short-circuits: a denied permission or policy aborts the
// call before any downstream middleware or the executor runs. The
// engine never retries; retry policy belongs to the caller.
//
// DETERMINISM:
//
// Recorded steps are stamped with a monotonic logical sequence from
// Clock.Next(), never wall-clock order. The step hash is an RFC 8785
// canonical JSON hash over {capability_id, params}, so the same call
// always has the same identity across restarts and replays.
//
// Replay is strictly sequential and stateful across calls within one
// execution context: callers reuse one Context (and its Cursor) for an
// entire replayed chain. Concurrent calls sharing one context during
// replay are unsafe and must be serialized by the caller.
package engine
