package engine

import "sync/atomic"

// quotaEnforcer tracks the number of capability calls per trace and
// enforces a maximum steps limit.
//
// Each execution chain (trace) has its own enforcer. The quota is
// checked on every call before the pipeline runs, in both live and
// replay modes, so a replayed chain cannot consume more steps than a
// live one would be allowed. The counter is atomic: concurrent calls
// sharing a trace id each claim a distinct step.
//
// This guards against runaway AI-produced chains: an upstream planner
// that keeps issuing calls against one context terminates with a
// structured QUOTA_EXCEEDED error instead of consuming unbounded
// integration quota.
type quotaEnforcer struct {
	maxSteps int
	current  atomic.Int64
}

func newQuotaEnforcer(maxSteps int) *quotaEnforcer {
	return &quotaEnforcer{maxSteps: maxSteps}
}

// check increments the step counter and validates against the limit.
func (q *quotaEnforcer) check(traceID string) error {
	n := int(q.current.Add(1))
	if n > q.maxSteps {
		return NewQuotaExceededError(traceID, n, q.maxSteps)
	}
	return nil
}
